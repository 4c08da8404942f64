package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/contrast"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(nil)

	s, err := r.Open("checkout flow", audit.DesignSystem{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Design.ComplianceLevel != contrast.LevelAA || s.Design.MaxTypefaces != 2 {
		t.Errorf("design system not normalised: %+v", s.Design)
	}

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get: %v", err)
	}
	s.Candidates.Add("step:abc")
	if infos := r.List(); len(infos) != 1 || infos[0].Candidates != 1 || infos[0].Name != "checkout flow" {
		t.Errorf("List = %+v", infos)
	}

	if err := r.Close(s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after close: %v", err)
	}
	if err := r.Close(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Close: %v", err)
	}
}

func TestRegistry_RejectsInvalidDesignSystem(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Open("", audit.DesignSystem{ComplianceLevel: "AAAA"})
	if !errors.Is(err, audit.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	_, err = r.Open("", audit.DesignSystem{Palette: []string{"#zzz"}})
	if !errors.Is(err, audit.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a bad palette, got %v", err)
	}
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := r.Open("a", audit.DefaultDesignSystem())
	b, _ := r.Open("b", audit.DefaultDesignSystem())
	if a.ID == b.ID {
		t.Fatal("duplicate session ids")
	}
	a.Candidates.Add("step:1")
	if b.Candidates.Contains("step:1") {
		t.Error("candidate leaked across sessions")
	}
}

func TestRegistry_Expire(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	old, _ := r.Open("old", audit.DefaultDesignSystem())
	now = now.Add(time.Hour)
	fresh, _ := r.Open("fresh", audit.DefaultDesignSystem())

	if n := r.Expire(30 * time.Minute); n != 1 {
		t.Fatalf("expired %d sessions, want 1", n)
	}
	if _, err := r.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session survived")
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("fresh session expired: %v", err)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	ids := make(chan string, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Open("", audit.DefaultDesignSystem())
			if err != nil {
				t.Error(err)
				return
			}
			ids <- s.ID
			_, _ = r.Get(s.ID)
			_ = r.List()
		}()
	}
	wg.Wait()
	close(ids)
	n := 0
	for id := range ids {
		if err := r.Close(id); err != nil {
			t.Error(err)
		}
		n++
	}
	if n != 40 || len(r.List()) != 0 {
		t.Errorf("closed %d, %d left", n, len(r.List()))
	}
}
