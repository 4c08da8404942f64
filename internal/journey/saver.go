package journey

import (
	"context"
	"errors"
	"fmt"

	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/store"
)

// Repository is the slice of the persistence contract the saver needs.
type Repository interface {
	Save(ctx context.Context, rec *store.Record) (*store.Record, bool, error)
	AddRelationship(ctx context.Context, parentKey, childKey, rel string) error
}

// Saver persists steps and journeys. Components are saved first so that
// their durable IDs exist, then the step under its confirmed key. Because the
// repository inserts only if absent, two workers saving the same step end up
// with the same record.
type Saver struct {
	repo   Repository
	logger logging.Logger
}

func NewSaver(repo Repository, logger logging.Logger) *Saver {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Saver{repo: repo, logger: logger.With(logging.Field{Key: "component", Value: "journey_saver"})}
}

// SaveStep persists s and its components, assigns durable IDs back onto s
// and marks it confirmed. It reports whether the step record was new.
func (sv *Saver) SaveStep(ctx context.Context, s *Step) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("%w: nil step", ErrInvalidInput)
	}
	if s.Status() == StatusDiscarded {
		return false, fmt.Errorf("%w: step %s was discarded", ErrInvalidInput, s.CandidateKey())
	}

	links, err := sv.saveComponents(ctx, s)
	if err != nil {
		return false, err
	}

	key, err := s.Key()
	if err != nil {
		return false, fmt.Errorf("journey: confirm step: %w", err)
	}
	rec, err := store.NewRecord(key, s)
	if err != nil {
		return false, err
	}
	saved, created, err := sv.repo.Save(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("journey: save step: %w", err)
	}

	s.mu.Lock()
	s.id = saved.ID
	s.status = StatusConfirmed
	s.mu.Unlock()

	for _, l := range links {
		if err := sv.repo.AddRelationship(ctx, key, l.key, l.rel); err != nil {
			return created, fmt.Errorf("journey: link step to %s: %w", l.rel, err)
		}
	}
	if !created {
		sv.logger.Debug("step already persisted", logging.Field{Key: "key", Value: key})
	}
	return created, nil
}

// SaveJourney persists every step, recomputes the journey's derived fields
// and stores the journey under its confirmed key.
func (sv *Saver) SaveJourney(ctx context.Context, j *Journey) (bool, error) {
	if j == nil {
		return false, fmt.Errorf("%w: nil journey", ErrInvalidInput)
	}
	steps := j.Steps()
	for i, s := range steps {
		if _, err := sv.SaveStep(ctx, s); err != nil {
			return false, fmt.Errorf("journey: step %d: %w", i, err)
		}
	}
	if err := j.SetSteps(steps); err != nil {
		return false, err
	}
	key, err := j.Key()
	if err != nil {
		return false, fmt.Errorf("journey: confirm journey: %w", err)
	}

	rec, err := store.NewRecord(key, j)
	if err != nil {
		return false, err
	}
	saved, created, err := sv.repo.Save(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("journey: save journey: %w", err)
	}
	j.mu.Lock()
	j.id = saved.ID
	j.status = StatusConfirmed
	j.mu.Unlock()

	for _, s := range steps {
		stepKey, _ := s.Key()
		if err := sv.repo.AddRelationship(ctx, key, stepKey, store.RelHasStep); err != nil {
			return created, fmt.Errorf("journey: link journey step: %w", err)
		}
	}
	sv.logger.Info("journey saved",
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "steps", Value: len(steps)},
		logging.Field{Key: "created", Value: created},
	)
	return created, nil
}

type link struct {
	key string
	rel string
}

// saveComponents stores every referenced page, element and user that has no
// ID yet and writes the IDs back onto the step.
func (sv *Saver) saveComponents(ctx context.Context, s *Step) ([]link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var links []link
	page := func(ref *PageRef, rel string) error {
		id, err := sv.ensure(ctx, ref.Key, ref.ID, ref)
		if err != nil {
			return err
		}
		ref.ID = id
		links = append(links, link{ref.Key, rel})
		return nil
	}
	element := func(ref *ElementRef) error {
		id, err := sv.ensure(ctx, ref.Key, ref.ID, ref)
		if err != nil {
			return err
		}
		ref.ID = id
		links = append(links, link{ref.Key, store.RelActsOn})
		return nil
	}

	var err error
	switch s.kind {
	case KindLanding:
		err = page(&s.landing.Page, store.RelStartsAt)
	case KindSimple:
		v := s.simple
		err = errors.Join(page(&v.Start, store.RelStartsAt), element(&v.Element), page(&v.End, store.RelEndsAt))
	case KindLogin:
		v := s.login
		err = errors.Join(
			page(&v.Start, store.RelStartsAt),
			element(&v.Username),
			element(&v.Password),
			element(&v.Submit),
			page(&v.End, store.RelEndsAt),
		)
		if err == nil {
			var id string
			id, err = sv.ensure(ctx, v.User.Key, v.User.ID, v.User)
			v.User.ID = id
			links = append(links, link{v.User.Key, store.RelAsUser})
		}
	case KindRedirect:
	}
	if err != nil {
		return nil, fmt.Errorf("journey: save components: %w", err)
	}
	return links, nil
}

// ensure saves a component record unless it already carries an ID. When the
// key was stored earlier (for example the full page snapshot) the existing
// record's ID wins.
func (sv *Saver) ensure(ctx context.Context, key, id string, payload any) (string, error) {
	if id != "" {
		return id, nil
	}
	rec, err := store.NewRecord(key, payload)
	if err != nil {
		return "", err
	}
	saved, _, err := sv.repo.Save(ctx, rec)
	if err != nil {
		return "", err
	}
	return saved.ID, nil
}
