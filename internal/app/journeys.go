package app

import (
	"context"
	"fmt"

	"github.com/raysh454/glimpse/internal/fingerprint"
	"github.com/raysh454/glimpse/internal/journey"
	"github.com/raysh454/glimpse/internal/logging"
)

// StepSpec is the wire form of a recorded step. Which fields are read
// depends on Kind.
type StepSpec struct {
	Kind journey.Kind `json:"kind"`

	Start   journey.PageRef    `json:"start"`
	End     journey.PageRef    `json:"end"`
	Element journey.ElementRef `json:"element"`
	Action  journey.Action     `json:"action,omitempty"`
	Input   string             `json:"input,omitempty"`

	Username journey.ElementRef `json:"username"`
	Password journey.ElementRef `json:"password"`
	Submit   journey.ElementRef `json:"submit"`
	User     string             `json:"user,omitempty"`

	Origin string   `json:"origin,omitempty"`
	URLs   []string `json:"urls,omitempty"`
}

// Build turns the wire form into a candidate step. Page and element keys must be
// well-formed fingerprints.
func (s StepSpec) Build() (*journey.Step, error) {
	for _, k := range s.keys() {
		if k != "" && !fingerprint.Valid(k) {
			return nil, fmt.Errorf("%w: malformed key %q", journey.ErrInvalidInput, k)
		}
	}
	switch s.Kind {
	case journey.KindLanding:
		return journey.NewLandingStep(s.Start)
	case journey.KindSimple:
		return journey.NewSimpleStep(s.Start, s.Element, s.Action, s.Input, s.End)
	case journey.KindLogin:
		var user journey.UserRef
		if s.User != "" {
			user = journey.UserRefFor(s.User)
		}
		return journey.NewLoginStep(s.Start, s.Username, s.Password, s.Submit, s.End, user)
	case journey.KindRedirect:
		return journey.NewRedirectStep(s.Origin, s.URLs)
	default:
		return nil, fmt.Errorf("%w: unknown step kind %q", journey.ErrInvalidInput, s.Kind)
	}
}

func (s StepSpec) keys() []string {
	return []string{s.Start.Key, s.End.Key, s.Element.Key, s.Username.Key, s.Password.Key, s.Submit.Key}
}

// JourneyResult reports what RecordJourney stored.
type JourneyResult struct {
	Key string `json:"key,omitempty"`
	ID  string `json:"id,omitempty"`
	// Duplicate is set when the session had already recorded this journey;
	// nothing was written.
	Duplicate bool `json:"duplicate"`
	Created   bool `json:"created"`
	// NewSteps counts steps this session had not seen before.
	NewSteps int `json:"new_steps"`
}

// RecordJourney saves the journey formed by steps within a session. Steps and
// journeys the session has already seen are filtered by candidate key before
// anything reaches the store; the store then collapses duplicates recorded by
// other sessions.
func (o *Orchestrator) RecordJourney(ctx context.Context, sessionID string, steps []*journey.Step) (*JourneyResult, error) {
	sess, err := o.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	j, err := journey.New(steps...)
	if err != nil {
		return nil, err
	}
	if !sess.Candidates.Add(j.CandidateKey()) {
		o.logger.Debug("journey already recorded in session",
			logging.Field{Key: "session", Value: sessionID},
			logging.Field{Key: "candidate", Value: j.CandidateKey()},
		)
		return &JourneyResult{Duplicate: true}, nil
	}
	fresh := sess.Candidates.Unique(steps)

	created, err := o.saver.SaveJourney(ctx, j)
	if err != nil {
		// let the client retry the same recording
		sess.Candidates.Remove(j.CandidateKey())
		for _, s := range fresh {
			sess.Candidates.Remove(s.CandidateKey())
		}
		return nil, err
	}
	key, _ := j.Key()
	o.logger.Info("journey recorded",
		logging.Field{Key: "session", Value: sessionID},
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "new_steps", Value: len(fresh)},
		logging.Field{Key: "created", Value: created},
	)
	return &JourneyResult{Key: key, ID: j.ID(), Created: created, NewSteps: len(fresh)}, nil
}
