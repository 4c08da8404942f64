package score

import (
	"sync"

	"github.com/raysh454/glimpse/internal/audit"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// ProgressUpdate is the snapshot pushed to clients while a job runs. Scores
// and progress values are percentages.
type ProgressUpdate struct {
	ContentScore          float64 `json:"content_score"`
	ContentProgress       float64 `json:"content_progress"`
	InfoArchScore         float64 `json:"info_arch_score"`
	InfoArchProgress      float64 `json:"info_arch_progress"`
	AestheticsScore       float64 `json:"aesthetics_score"`
	AestheticsProgress    float64 `json:"aesthetics_progress"`
	AccessibilityScore    float64 `json:"accessibility_score"`
	AccessibilityProgress float64 `json:"accessibility_progress"`
	OverallScore          float64 `json:"overall_score"`
	OverallProgress       float64 `json:"overall_progress"`
	Status                Status  `json:"status"`
}

type tally struct {
	expected int
	done     int
	score    Bucket
}

// Progress tracks how many of a job's expected rule runs have finished and
// the running score of those that produced audits. Safe for concurrent use.
type Progress struct {
	mu      sync.Mutex
	byCat   map[audit.Category]*tally
	overall tally
	failed  bool
}

func NewProgress() *Progress {
	p := &Progress{byCat: make(map[audit.Category]*tally, len(audit.Categories))}
	for _, c := range audit.Categories {
		p.byCat[c] = &tally{}
	}
	return p
}

// Expect registers one pending rule run per meta.
func (p *Progress) Expect(metas ...audit.Meta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range metas {
		p.cat(m.Category).expected++
		p.overall.expected++
	}
}

// Record marks a run as done and adds its audit to the score.
func (p *Progress) Record(a *audit.Audit) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.cat(a.Category())
	t.done++
	p.overall.done++
	if a.MaxPoints() > 0 {
		t.score.add(a.Points(), a.MaxPoints())
		p.overall.score.add(a.Points(), a.MaxPoints())
	}
}

// Fail marks a run as done without a score. Skipped rules are reported the
// same way.
func (p *Progress) Fail(m audit.Meta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cat(m.Category).done++
	p.overall.done++
}

// Abort marks the whole job as failed.
func (p *Progress) Abort() {
	p.mu.Lock()
	p.failed = true
	p.mu.Unlock()
}

func (p *Progress) cat(c audit.Category) *tally {
	t, ok := p.byCat[c]
	if !ok {
		t = &tally{}
		p.byCat[c] = t
	}
	return t
}

// Update snapshots the current state.
func (p *Progress) Update() ProgressUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()

	u := ProgressUpdate{
		ContentScore:          p.byCat[audit.CategoryContent].score.Percent,
		ContentProgress:       p.byCat[audit.CategoryContent].progress(),
		InfoArchScore:         p.byCat[audit.CategoryInformationArchitecture].score.Percent,
		InfoArchProgress:      p.byCat[audit.CategoryInformationArchitecture].progress(),
		AestheticsScore:       p.byCat[audit.CategoryAesthetics].score.Percent,
		AestheticsProgress:    p.byCat[audit.CategoryAesthetics].progress(),
		AccessibilityScore:    p.byCat[audit.CategoryAccessibility].score.Percent,
		AccessibilityProgress: p.byCat[audit.CategoryAccessibility].progress(),
		OverallScore:          p.overall.score.Percent,
		OverallProgress:       p.overall.progress(),
		Status:                StatusInProgress,
	}
	switch {
	case p.failed:
		u.Status = StatusFailed
	case p.overall.expected > 0 && p.overall.done >= p.overall.expected:
		u.Status = StatusComplete
	}
	return u
}

// progress is 0 until something is expected.
func (t *tally) progress() float64 {
	if t.expected == 0 {
		return 0
	}
	return clamp(float64(t.done) / float64(t.expected) * 100)
}
