package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raysh454/glimpse/internal/contrast"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/readability"
)

var testMeta = Meta{Category: CategoryAccessibility, Subcategory: SubcategoryImagery, Name: NameAltText, Level: LevelPage}

func genericIssue(points, maxPoints int) Issue {
	return Issue{Kind: IssueGeneric, Priority: PriorityLow, Title: "t", Points: points, MaxPoints: maxPoints}
}

func TestIssue_Validate(t *testing.T) {
	ok := Issue{Kind: IssueElement, Priority: PriorityHigh, Points: 0, MaxPoints: 1, Element: &ElementDetail{ElementKey: "k"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid issue rejected: %v", err)
	}

	cases := map[string]Issue{
		"points above max":    genericIssue(2, 1),
		"negative":            genericIssue(-1, 1),
		"missing detail":      {Kind: IssueColorContrast, Priority: PriorityHigh, MaxPoints: 1},
		"wrong detail":        {Kind: IssueElement, Priority: PriorityHigh, MaxPoints: 1, Element: &ElementDetail{}, Typefaces: &TypefacesDetail{}},
		"generic with detail": {Kind: IssueGeneric, Priority: PriorityHigh, MaxPoints: 1, Typefaces: &TypefacesDetail{}},
		"unknown kind":        {Kind: "weird", Priority: PriorityHigh},
		"bad priority":        {Kind: IssueGeneric, Priority: "urgent"},
	}
	for name, is := range cases {
		if err := is.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestIssue_ScoreAndAttach(t *testing.T) {
	cases := []struct {
		points, max, want int
	}{
		{0, 0, 0}, {1, 1, 100}, {1, 3, 33}, {2, 3, 67}, {0, 4, 0},
	}
	for _, tc := range cases {
		if got := genericIssue(tc.points, tc.max).Score(); got != tc.want {
			t.Errorf("Score(%d/%d) = %d, want %d", tc.points, tc.max, got, tc.want)
		}
	}

	is := genericIssue(1, 1)
	before := is.Key()
	is.AttachTo("element:a")
	is.AttachTo("element:a")
	if len(is.Elements) != 1 {
		t.Errorf("AttachTo duplicated: %v", is.Elements)
	}
	if is.Key() == before {
		t.Errorf("attaching must change the issue key")
	}
}

func TestNew_SumsPointsFromIssues(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		var issues []Issue
		for i := 0; i < r.Intn(10); i++ {
			hi := r.Intn(5)
			issues = append(issues, genericIssue(r.Intn(hi+1), hi))
		}
		a, err := New(testMeta, "https://example.com", "", Score{Points: 999, MaxPoints: 1, Issues: issues})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if a.Points() < 0 || a.Points() > a.MaxPoints() {
			t.Fatalf("points %d outside [0, %d]", a.Points(), a.MaxPoints())
		}
		s, _ := NewScore(issues...)
		if a.Points() != s.Points || a.MaxPoints() != s.MaxPoints {
			t.Fatalf("audit %d/%d, issues sum %d/%d", a.Points(), a.MaxPoints(), s.Points, s.MaxPoints)
		}
	}

	if _, err := New(Meta{Category: "x", Subcategory: SubcategorySEO, Name: NameTitles, Level: LevelPage}, "u", "", Score{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid category accepted: %v", err)
	}
	if _, err := New(testMeta, "u", "", Score{Issues: []Issue{genericIssue(3, 1)}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid issue accepted: %v", err)
	}
}

func TestAudit_IssuesAreCopies(t *testing.T) {
	a, err := New(testMeta, "u", "", Score{Issues: []Issue{{Kind: IssueTypefaces, Priority: PriorityLow, MaxPoints: 1, Typefaces: &TypefacesDetail{Families: []string{"a"}}}}})
	if err != nil {
		t.Fatal(err)
	}
	got := a.Issues()
	got[0].Points = 1
	got[0].Typefaces.Families[0] = "changed"
	again := a.Issues()
	if again[0].Points != 0 || again[0].Typefaces.Families[0] != "a" {
		t.Errorf("audit issues were mutated through a copy")
	}
	before := a.Key()
	if err := a.AttachIssue(0, "element:x"); err != nil {
		t.Fatal(err)
	}
	if els := a.Issues()[0].Elements; len(els) != 1 {
		t.Errorf("AttachIssue not applied: %v", els)
	}
	if a.Key() == before {
		t.Error("audit key did not follow the attached element")
	}
	rebuilt, err := New(testMeta, "u", "", Score{Issues: a.Issues()})
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt.Key() != a.Key() {
		t.Errorf("key %q does not match a fresh audit over the same issues %q", a.Key(), rebuilt.Key())
	}
	if err := a.AttachIssue(3, "element:x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("out of range: %v", err)
	}
}

func TestAudit_ConcurrentAttach(t *testing.T) {
	a, err := New(testMeta, "u", "", Score{Issues: []Issue{genericIssue(1, 1)}})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = a.AttachIssue(0, fmt.Sprintf("element:%d", i))
			_ = a.Key()
			_, _ = json.Marshal(a)
		}(i)
	}
	wg.Wait()
	if n := len(a.Issues()[0].Elements); n != 8 {
		t.Errorf("elements attached = %d, want 8", n)
	}
}

type fakeRule struct {
	meta Meta
	fn   func(ctx context.Context) (*Audit, error)
}

func (f fakeRule) Meta() Meta { return f.meta }

func (f fakeRule) Execute(ctx context.Context, _ Run, _ *page.PageState, _ DesignSystem) (*Audit, error) {
	return f.fn(ctx)
}

func passing(t *testing.T, name Name) fakeRule {
	meta := Meta{Category: CategoryContent, Subcategory: SubcategorySEO, Name: name, Level: LevelPage}
	return fakeRule{meta: meta, fn: func(context.Context) (*Audit, error) {
		return New(meta, "https://example.com", "", Score{Issues: []Issue{genericIssue(1, 1)}})
	}}
}

func testPage(t *testing.T) *page.PageState {
	t.Helper()
	p, err := page.NewPage("https://example.com", "", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExecutor_PartialFailure(t *testing.T) {
	for _, mode := range []string{"panic", "error"} {
		t.Run(mode, func(t *testing.T) {
			broken := fakeRule{
				meta: Meta{Category: CategoryContent, Subcategory: SubcategorySEO, Name: NameHeaders, Level: LevelPage},
				fn: func(context.Context) (*Audit, error) {
					if mode == "panic" {
						panic("malformed css colour")
					}
					return nil, errors.New("malformed css colour")
				},
			}
			rules := []Rule{passing(t, NameTitles), broken, passing(t, NameLinks)}

			var observed atomic.Int32
			run := Run{ID: "r1", Observe: func(Meta, *Audit, error) { observed.Add(1) }}
			rep, err := NewExecutor(Config{Workers: 2}, logging.Nop{}).RunPage(context.Background(), run, testPage(t), DefaultDesignSystem(), rules)
			if err != nil {
				t.Fatalf("RunPage: %v", err)
			}
			if rep.State != StateFailedPartial {
				t.Errorf("state = %s", rep.State)
			}
			if len(rep.Audits) != 2 || rep.Audits[0].Name() != NameTitles || rep.Audits[1].Name() != NameLinks {
				t.Fatalf("audits = %v", rep.Audits)
			}
			if len(rep.Failures) != 1 || rep.Failures[0].Rule != NameHeaders {
				t.Fatalf("failures = %v", rep.Failures)
			}
			if (mode == "panic") != rep.Failures[0].Panicked {
				t.Errorf("panicked = %v", rep.Failures[0].Panicked)
			}
			if mode == "panic" && !errors.Is(rep.Failures[0].Err, ErrRulePanicked) {
				t.Errorf("panic not wrapped: %v", rep.Failures[0].Err)
			}
			if observed.Load() != 3 {
				t.Errorf("observer saw %d results", observed.Load())
			}
		})
	}
}

func TestExecutor_SkipsNotApplicable(t *testing.T) {
	meta := Meta{Category: CategoryAesthetics, Subcategory: SubcategoryColorManagement, Name: NameTextContrast, Level: LevelPage}
	declines := fakeRule{meta: meta, fn: func(context.Context) (*Audit, error) { return nil, ErrNotApplicable }}

	rep, err := NewExecutor(DefaultConfig(), nil).RunPage(context.Background(), Run{}, testPage(t), DefaultDesignSystem(), []Rule{declines, passing(t, NameTitles)})
	if err != nil {
		t.Fatal(err)
	}
	if rep.State != StateCompleted || len(rep.Audits) != 1 || len(rep.Skipped) != 1 || rep.Skipped[0] != NameTextContrast {
		t.Errorf("report = %+v", rep)
	}
}

func TestExecutor_RuleTimeout(t *testing.T) {
	meta := Meta{Category: CategoryAesthetics, Subcategory: SubcategoryImagery, Name: NameImagePolicy, Level: LevelPage}
	slow := fakeRule{meta: meta, fn: func(ctx context.Context) (*Audit, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	stuck := fakeRule{meta: Meta{Category: CategoryContent, Subcategory: SubcategorySEO, Name: NameHeaders, Level: LevelPage},
		fn: func(context.Context) (*Audit, error) {
			time.Sleep(2 * time.Second)
			return nil, nil
		}}

	start := time.Now()
	rep, err := NewExecutor(Config{Workers: 3, RuleTimeout: 50 * time.Millisecond}, nil).
		RunPage(context.Background(), Run{}, testPage(t), DefaultDesignSystem(), []Rule{slow, stuck, passing(t, NameTitles)})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("executor waited for a rule that ignores its context")
	}
	if len(rep.Failures) != 2 || len(rep.Audits) != 1 {
		t.Errorf("report = %+v", rep)
	}
	for _, f := range rep.Failures {
		if !errors.Is(f.Err, context.DeadlineExceeded) {
			t.Errorf("failure %s: %v", f.Rule, f.Err)
		}
	}
}

func TestExecutor_AbandonedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	meta := Meta{Category: CategoryContent, Subcategory: SubcategorySEO, Name: NameHeaders, Level: LevelPage}
	cancelling := fakeRule{meta: meta, fn: func(ctx context.Context) (*Audit, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	rep, err := NewExecutor(Config{Workers: 1}, nil).RunPage(ctx, Run{}, testPage(t), DefaultDesignSystem(), []Rule{passing(t, NameTitles), cancelling})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.State != StateAbandoned || len(rep.Audits) != 0 {
		t.Errorf("abandoned run kept results: %+v", rep)
	}
}

func TestExecutor_InvalidInput(t *testing.T) {
	ex := NewExecutor(DefaultConfig(), nil)
	if _, err := ex.RunPage(context.Background(), Run{}, nil, DefaultDesignSystem(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil page: %v", err)
	}
	if _, err := ex.RunDomain(context.Background(), Run{}, nil, DefaultDesignSystem(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil domain: %v", err)
	}
	if _, err := ex.RunPage(context.Background(), Run{}, testPage(t), DefaultDesignSystem(), []Rule{nil}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil rule: %v", err)
	}
}

func TestDesignSystem(t *testing.T) {
	ds := DesignSystem{Palette: []string{"#112233"}}.Normalize()
	if ds.ComplianceLevel != "AA" || ds.MaxTypefaces != 2 {
		t.Errorf("Normalize = %+v", ds)
	}
	if err := ds.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if !ds.Allows(ImagePeople) || ds.Allows(ImageStock) {
		t.Errorf("default image policy wrong")
	}
	ds.Palette = append(ds.Palette, "not-a-colour")
	if err := ds.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad palette: %v", err)
	}
}

func TestDesignSystem_NormalizeCanonicalSpelling(t *testing.T) {
	ds := DesignSystem{ComplianceLevel: " aaa", Audience: "college "}.Normalize()
	if ds.ComplianceLevel != contrast.LevelAAA {
		t.Errorf("ComplianceLevel = %q, want AAA", ds.ComplianceLevel)
	}
	if ds.Audience != readability.EducationCollege {
		t.Errorf("Audience = %q, want COLLEGE", ds.Audience)
	}

	bad := DesignSystem{ComplianceLevel: "gold"}.Normalize()
	if bad.ComplianceLevel != "gold" {
		t.Errorf("unparseable level rewritten to %q", bad.ComplianceLevel)
	}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Validate(gold) = %v", err)
	}
}
