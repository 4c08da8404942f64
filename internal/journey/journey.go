package journey

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/raysh454/glimpse/internal/fingerprint"
)

// Journey is an ordered sequence of steps. OrderedIDs and CandidateKey are
// derived from the steps and only change through SetSteps.
type Journey struct {
	mu sync.Mutex

	id     string
	status Status
	steps  []*Step

	orderedIDs   []string
	candidateKey string
	key          string
}

// New builds a candidate journey from steps.
func New(steps ...*Step) (*Journey, error) {
	j := &Journey{status: StatusCandidate}
	if err := j.SetSteps(steps); err != nil {
		return nil, err
	}
	return j, nil
}

// SetSteps replaces the sequence, recomputes OrderedIDs (steps without a
// durable ID are left out) and CandidateKey, and drops any cached Key.
func (j *Journey) SetSteps(steps []*Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: journey needs at least one step", ErrInvalidInput)
	}
	ids := make([]string, 0, len(steps))
	candidates := make([]string, 0, len(steps))
	for i, s := range steps {
		if s == nil {
			return fmt.Errorf("%w: journey step %d is nil", ErrInvalidInput, i)
		}
		if id := s.ID(); id != "" {
			ids = append(ids, id)
		}
		candidates = append(candidates, s.CandidateKey())
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append([]*Step(nil), steps...)
	j.orderedIDs = ids
	j.candidateKey = fingerprint.Joined(fingerprint.Journey, candidates)
	j.key = ""
	return nil
}

func (j *Journey) Steps() []*Step {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Step(nil), j.steps...)
}

func (j *Journey) OrderedIDs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.orderedIDs...)
}

func (j *Journey) CandidateKey() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.candidateKey
}

// Key is the hash of the "|"-joined ordered step IDs. It is only defined
// once every step had a durable ID at the last SetSteps; the value is cached
// until the next SetSteps.
func (j *Journey) Key() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.key != "" {
		return j.key, nil
	}
	if len(j.orderedIDs) != len(j.steps) {
		return "", ErrNotPersisted
	}
	j.key = fingerprint.Joined(fingerprint.Journey, j.orderedIDs)
	return j.key, nil
}

func (j *Journey) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

func (j *Journey) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Journey) MarshalJSON() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return json.Marshal(struct {
		ID           string   `json:"id,omitempty"`
		Status       Status   `json:"status"`
		Key          string   `json:"key,omitempty"`
		CandidateKey string   `json:"candidate_key"`
		OrderedIDs   []string `json:"ordered_ids"`
		Steps        []*Step  `json:"steps"`
	}{j.id, j.status, j.key, j.candidateKey, j.orderedIDs, j.steps})
}
