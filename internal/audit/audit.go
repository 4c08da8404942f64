package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/glimpse/internal/fingerprint"
)

var (
	ErrInvalidInput = errors.New("audit: invalid input")
	// ErrNotApplicable is returned by a rule that declines to run, for
	// example a contrast rule under compliance level A.
	ErrNotApplicable = errors.New("audit: rule not applicable")
)

// Score is the intermediate sum a rule builds before it becomes an Audit.
type Score struct {
	Points    int
	MaxPoints int
	Issues    []Issue
}

// NewScore validates issues and sums their points.
func NewScore(issues ...Issue) (Score, error) {
	s := Score{Issues: make([]Issue, 0, len(issues))}
	for _, i := range issues {
		if err := i.Validate(); err != nil {
			return Score{}, err
		}
		s.Points += i.Points
		s.MaxPoints += i.MaxPoints
		s.Issues = append(s.Issues, i.clone())
	}
	return s, nil
}

// Audit is the scored result of one rule over one page or domain. Points and
// MaxPoints are always the sums over its issues. The key always covers the
// issues as they currently stand.
type Audit struct {
	mu        sync.RWMutex
	key       string
	meta      Meta
	points    int
	maxPoints int
	url       string
	rationale string
	issues    []Issue
	createdAt time.Time
}

// New builds an audit from a score. The score's sums are recomputed from its
// issues rather than trusted.
func New(meta Meta, url, rationale string, score Score) (*Audit, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	s, err := NewScore(score.Issues...)
	if err != nil {
		return nil, err
	}
	a := &Audit{
		meta:      meta,
		points:    s.Points,
		maxPoints: s.MaxPoints,
		url:       url,
		rationale: rationale,
		issues:    s.Issues,
		createdAt: time.Now().UTC(),
	}
	a.key = a.computeKey()
	return a, nil
}

func (a *Audit) computeKey() string {
	parts := []string{string(a.meta.Category), string(a.meta.Subcategory), string(a.meta.Name), string(a.meta.Level), a.url}
	for _, i := range a.issues {
		parts = append(parts, i.Key())
	}
	return fingerprint.Of(fingerprint.Audit, parts...)
}

func (a *Audit) Key() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.key
}

func (a *Audit) Meta() Meta               { return a.meta }
func (a *Audit) Category() Category       { return a.meta.Category }
func (a *Audit) Subcategory() Subcategory { return a.meta.Subcategory }
func (a *Audit) Name() Name               { return a.meta.Name }
func (a *Audit) Level() Level             { return a.meta.Level }
func (a *Audit) Points() int              { return a.points }
func (a *Audit) MaxPoints() int           { return a.maxPoints }
func (a *Audit) URL() string              { return a.url }
func (a *Audit) Rationale() string        { return a.rationale }
func (a *Audit) CreatedAt() time.Time     { return a.createdAt }

// Issues returns copies of the audit's issues.
func (a *Audit) Issues() []Issue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Issue, len(a.issues))
	for i, is := range a.issues {
		out[i] = is.clone()
	}
	return out
}

// AttachIssue links issue idx to an element and rekeys the audit.
func (a *Audit) AttachIssue(idx int, elementKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx < 0 || idx >= len(a.issues) {
		return fmt.Errorf("%w: issue index %d", ErrInvalidInput, idx)
	}
	a.issues[idx].AttachTo(elementKey)
	a.key = a.computeKey()
	return nil
}

// Percent is points/maxPoints*100, and false when the audit has no points.
func (a *Audit) Percent() (float64, bool) {
	if a.maxPoints == 0 {
		return 0, false
	}
	return float64(a.points) / float64(a.maxPoints) * 100, true
}

type auditWire struct {
	Key         string      `json:"key"`
	Category    Category    `json:"category"`
	Subcategory Subcategory `json:"subcategory"`
	Name        Name        `json:"name"`
	Level       Level       `json:"level"`
	Points      int         `json:"points"`
	MaxPoints   int         `json:"max_points"`
	URL         string      `json:"url"`
	Rationale   string      `json:"rationale,omitempty"`
	Issues      []Issue     `json:"issues"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (a *Audit) MarshalJSON() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return json.Marshal(auditWire{
		Key:         a.key,
		Category:    a.meta.Category,
		Subcategory: a.meta.Subcategory,
		Name:        a.meta.Name,
		Level:       a.meta.Level,
		Points:      a.points,
		MaxPoints:   a.maxPoints,
		URL:         a.url,
		Rationale:   a.rationale,
		Issues:      a.issues,
		CreatedAt:   a.createdAt,
	})
}
