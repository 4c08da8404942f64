package journey

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raysh454/glimpse/internal/fingerprint"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/store"
)

func pageRef(name string) PageRef {
	return PageRef{Key: fingerprint.Of(fingerprint.Page, name), URL: "https://example.com/" + name}
}

func elementRef(name string) ElementRef {
	return ElementRef{Key: fingerprint.Of(fingerprint.Element, name), Locator: "/html[1]/body[1]/" + name}
}

func loginStep(t *testing.T) *Step {
	t.Helper()
	s, err := NewLoginStep(pageRef("login"), elementRef("user"), elementRef("pass"), elementRef("submit"), pageRef("home"), UserRefFor("alice"))
	if err != nil {
		t.Fatalf("NewLoginStep: %v", err)
	}
	return s
}

func TestConstructors_RejectMissingComponents(t *testing.T) {
	cases := []struct {
		name  string
		build func() (*Step, error)
		field string
	}{
		{"landing", func() (*Step, error) { return NewLandingStep(PageRef{}) }, "page"},
		{"simple element", func() (*Step, error) {
			return NewSimpleStep(pageRef("a"), ElementRef{}, ActionClick, "", pageRef("b"))
		}, "element"},
		{"simple action", func() (*Step, error) {
			return NewSimpleStep(pageRef("a"), elementRef("x"), Action("drag"), "", pageRef("b"))
		}, "a known action"},
		{"login user", func() (*Step, error) {
			return NewLoginStep(pageRef("a"), elementRef("u"), elementRef("p"), elementRef("s"), pageRef("b"), UserRef{})
		}, "test user"},
		{"redirect origin", func() (*Step, error) { return NewRedirectStep("  ", nil) }, "origin url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var ie *InvalidInputError
			if !errors.As(err, &ie) || ie.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestStepKeys_Deterministic(t *testing.T) {
	a, b := loginStep(t), loginStep(t)
	if a.CandidateKey() != b.CandidateKey() {
		t.Fatalf("identical login steps have different candidate keys")
	}
	if a.Status() != StatusCandidate {
		t.Errorf("status = %s", a.Status())
	}

	s1, _ := NewSimpleStep(pageRef("a"), elementRef("btn"), ActionClick, "", pageRef("b"))
	s2, _ := NewSimpleStep(pageRef("a"), elementRef("btn"), ActionHover, "", pageRef("b"))
	s3, _ := NewSimpleStep(pageRef("a"), elementRef("btn"), ActionType, "hello", pageRef("b"))
	s4, _ := NewSimpleStep(pageRef("a"), elementRef("btn"), ActionType, "world", pageRef("b"))
	seen := map[string]bool{}
	for _, s := range []*Step{s1, s2, s3, s4} {
		if seen[s.CandidateKey()] {
			t.Errorf("candidate key collision for %s", s.CandidateKey())
		}
		seen[s.CandidateKey()] = true
	}
}

func TestStepKey_RequiresPersistence(t *testing.T) {
	s := loginStep(t)
	if _, err := s.Key(); !errors.Is(err, ErrNotPersisted) {
		t.Fatalf("expected ErrNotPersisted, got %v", err)
	}

	r, err := NewRedirectStep("https://example.com/start?x=1", []string{"https://a", "https://a", "https://b", "https://a"})
	if err != nil {
		t.Fatalf("NewRedirectStep: %v", err)
	}
	v, _ := r.Redirect()
	if v.Origin != "https://example.com/start" {
		t.Errorf("origin = %q", v.Origin)
	}
	if len(v.URLs) != 3 {
		t.Errorf("urls = %v, want immediate repeat dropped", v.URLs)
	}
	key, err := r.Key()
	if err != nil || key != r.CandidateKey() {
		t.Errorf("redirect key = %q, %v; want candidate key", key, err)
	}
}

func TestJourney_SetStepsRecomputes(t *testing.T) {
	l1, _ := NewLandingStep(pageRef("home"))
	s1, _ := NewSimpleStep(pageRef("home"), elementRef("nav"), ActionClick, "", pageRef("about"))

	j, err := New(l1, s1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := j.CandidateKey()

	rebuilt, _ := New(l1, s1)
	if rebuilt.CandidateKey() != before {
		t.Errorf("no-op rebuild changed the candidate key")
	}

	if err := j.SetSteps([]*Step{s1, l1}); err != nil {
		t.Fatalf("SetSteps: %v", err)
	}
	if j.CandidateKey() == before {
		t.Errorf("swapping steps must change the candidate key")
	}
	if len(j.OrderedIDs()) != 0 {
		t.Errorf("unsaved steps must not contribute ordered ids")
	}
	if _, err := j.Key(); !errors.Is(err, ErrNotPersisted) {
		t.Errorf("expected ErrNotPersisted, got %v", err)
	}

	if err := j.SetSteps(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty journey: %v", err)
	}
	if _, err := New(l1, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil step: %v", err)
	}
}

func TestSaver_ConfirmsStepsAndJourney(t *testing.T) {
	repo := store.NewMemoryRepository()
	saver := NewSaver(repo, logging.Nop{})
	ctx := context.Background()

	l1, _ := NewLandingStep(pageRef("home"))
	login := loginStep(t)
	j, _ := New(l1, login)

	created, err := saver.SaveJourney(ctx, j)
	if err != nil {
		t.Fatalf("SaveJourney: %v", err)
	}
	if !created {
		t.Errorf("first save should create the journey")
	}
	if login.Status() != StatusConfirmed || login.ID() == "" {
		t.Errorf("login step not confirmed: %s %q", login.Status(), login.ID())
	}
	ids := j.OrderedIDs()
	if len(ids) != 2 || ids[0] != l1.ID() || ids[1] != login.ID() {
		t.Errorf("ordered ids = %v", ids)
	}
	key, err := j.Key()
	if err != nil {
		t.Fatalf("journey key: %v", err)
	}
	if key != fingerprint.Joined(fingerprint.Journey, ids) {
		t.Errorf("journey key is not the hash of its ordered ids")
	}

	kids, err := repo.Children(ctx, key, store.RelHasStep)
	if err != nil || len(kids) != 2 {
		t.Fatalf("journey steps = %d, %v", len(kids), err)
	}

	// Swapping the persisted steps yields a different confirmed key.
	if err := j.SetSteps([]*Step{login, l1}); err != nil {
		t.Fatal(err)
	}
	swapped, err := j.Key()
	if err != nil || swapped == key {
		t.Errorf("swapped key = %q, %v", swapped, err)
	}
}

func TestSaver_ConcurrentDuplicateLoginCollapses(t *testing.T) {
	backends := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return store.NewMemoryRepository() },
		"sqlite": func(t *testing.T) Repository {
			repo, err := store.NewSQLiteRepository(filepath.Join(t.TempDir(), "j.db"), nil)
			if err != nil {
				t.Fatalf("sqlite: %v", err)
			}
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			saver := NewSaver(open(t), nil)
			ctx := context.Background()

			const workers = 6
			steps := make([]*Step, workers)
			for i := range steps {
				steps[i] = loginStep(t)
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			created := 0
			errs := make([]error, workers)
			for i, s := range steps {
				wg.Add(1)
				go func(i int, s *Step) {
					defer wg.Done()
					ok, err := saver.SaveStep(ctx, s)
					errs[i] = err
					if ok {
						mu.Lock()
						created++
						mu.Unlock()
					}
				}(i, s)
			}
			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Fatalf("worker %d: %v", i, err)
				}
			}
			if created != 1 {
				t.Errorf("created %d step records, want 1", created)
			}
			first, _ := steps[0].Key()
			for _, s := range steps[1:] {
				if k, _ := s.Key(); k != first {
					t.Errorf("confirmed keys differ: %s vs %s", k, first)
				}
				if s.ID() != steps[0].ID() {
					t.Errorf("ids differ: %s vs %s", s.ID(), steps[0].ID())
				}
			}
		})
	}
}

func TestSaver_RejectsDiscarded(t *testing.T) {
	s := loginStep(t)
	s.Discard()
	if _, err := NewSaver(store.NewMemoryRepository(), nil).SaveStep(context.Background(), s); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCandidateSet_Unique(t *testing.T) {
	set := NewCandidateSet()
	a, b := loginStep(t), loginStep(t)
	l, _ := NewLandingStep(pageRef("home"))

	out := set.Unique([]*Step{a, b, l, nil})
	if len(out) != 2 || out[0] != a || out[1] != l {
		t.Fatalf("Unique = %v", out)
	}
	if !set.Contains(a.CandidateKey()) || set.Len() != 2 {
		t.Errorf("set not updated")
	}
	if set.Add(a.CandidateKey()) {
		t.Errorf("re-adding must report false")
	}
	set.Remove(a.CandidateKey())
	if set.Contains(a.CandidateKey()) {
		t.Errorf("Remove did not forget the key")
	}
}
