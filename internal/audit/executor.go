package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

var ErrRulePanicked = errors.New("audit: rule panicked")

// State of an executor run.
type State string

const (
	StateNotRun        State = "not_run"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailedPartial State = "failed_partial"
	StateAbandoned     State = "abandoned"
)

// Failure records a rule that errored, panicked or timed out.
type Failure struct {
	Rule     Name
	Err      error
	Panicked bool
}

func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Rule     Name   `json:"rule"`
		Error    string `json:"error"`
		Panicked bool   `json:"panicked,omitempty"`
	}{f.Rule, msg, f.Panicked})
}

// Report is the outcome of running a rule set. Audits are in rule order.
type Report struct {
	State    State     `json:"state"`
	URL      string    `json:"url"`
	Audits   []*Audit  `json:"audits"`
	Failures []Failure `json:"failures,omitempty"`
	Skipped  []Name    `json:"skipped,omitempty"`
}

// Config controls the executor's worker pool.
type Config struct {
	Workers     int           `yaml:"workers" json:"workers"`
	RuleTimeout time.Duration `yaml:"rule_timeout" json:"rule_timeout"`
}

func DefaultConfig() Config {
	return Config{Workers: 4, RuleTimeout: 30 * time.Second}
}

// Executor runs rules concurrently and isolates their failures: an error or
// panic in one rule is recorded and the others still contribute.
type Executor struct {
	workers int
	timeout time.Duration
	logger  logging.Logger
}

func NewExecutor(cfg Config, logger logging.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Executor{
		workers: cfg.Workers,
		timeout: cfg.RuleTimeout,
		logger:  logger.With(logging.Field{Key: "component", Value: "executor"}),
	}
}

// RunPage runs page rules over p. The error is non-nil only for invalid input
// or when ctx ends first, in which case the report is abandoned and carries
// no audits.
func (e *Executor) RunPage(ctx context.Context, run Run, p *page.PageState, ds DesignSystem, rules []Rule) (*Report, error) {
	if p == nil {
		return &Report{State: StateNotRun}, fmt.Errorf("%w: nil page", ErrInvalidInput)
	}
	metas := make([]Meta, len(rules))
	for i, r := range rules {
		if r == nil {
			return &Report{State: StateNotRun, URL: p.URL()}, fmt.Errorf("%w: rule %d is nil", ErrInvalidInput, i)
		}
		metas[i] = r.Meta()
	}
	return e.run(ctx, run, p.URL(), metas, func(ctx context.Context, i int) (*Audit, error) {
		return rules[i].Execute(ctx, run, p, ds)
	})
}

// RunDomain runs domain rules over d.
func (e *Executor) RunDomain(ctx context.Context, run Run, d *page.Domain, ds DesignSystem, rules []DomainRule) (*Report, error) {
	if d == nil {
		return &Report{State: StateNotRun}, fmt.Errorf("%w: nil domain", ErrInvalidInput)
	}
	metas := make([]Meta, len(rules))
	for i, r := range rules {
		if r == nil {
			return &Report{State: StateNotRun, URL: d.URL}, fmt.Errorf("%w: domain rule %d is nil", ErrInvalidInput, i)
		}
		metas[i] = r.Meta()
	}
	return e.run(ctx, run, d.URL, metas, func(ctx context.Context, i int) (*Audit, error) {
		return rules[i].ExecuteDomain(ctx, run, d, ds)
	})
}

type outcome struct {
	audit    *Audit
	err      error
	panicked bool
}

func (e *Executor) run(ctx context.Context, run Run, url string, metas []Meta, call func(context.Context, int) (*Audit, error)) (*Report, error) {
	logger := e.logger.With(logging.Field{Key: "run", Value: run.ID}, logging.Field{Key: "url", Value: url})
	results := make([]outcome, len(metas))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)
	for i := range metas {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = outcome{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			out := e.invoke(ctx, i, call)
			results[i] = out
			if run.Observe != nil && ctx.Err() == nil {
				run.Observe(metas[i], out.audit, out.err)
			}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("audit run abandoned", logging.Err(err))
		return &Report{State: StateAbandoned, URL: url}, err
	}

	rep := &Report{URL: url, Audits: make([]*Audit, 0, len(metas))}
	for i, out := range results {
		meta := metas[i]
		switch {
		case errors.Is(out.err, ErrNotApplicable), out.err == nil && out.audit == nil:
			rep.Skipped = append(rep.Skipped, meta.Name)
			logger.Debug("rule not applicable", logging.Field{Key: "rule", Value: meta.Name})
		case out.err != nil:
			rep.Failures = append(rep.Failures, Failure{Rule: meta.Name, Err: out.err, Panicked: out.panicked})
			logger.Error("rule failed",
				logging.Field{Key: "rule", Value: meta.Name},
				logging.Field{Key: "panicked", Value: out.panicked},
				logging.Err(out.err),
			)
		case out.audit.Name() != meta.Name:
			err := fmt.Errorf("%w: rule %s returned an audit named %s", ErrInvalidInput, meta.Name, out.audit.Name())
			rep.Failures = append(rep.Failures, Failure{Rule: meta.Name, Err: err})
			logger.Error("rule returned a foreign audit", logging.Err(err))
		default:
			rep.Audits = append(rep.Audits, out.audit)
		}
	}

	rep.State = StateCompleted
	if len(rep.Failures) > 0 {
		rep.State = StateFailedPartial
	}
	logger.Info("audit run finished",
		logging.Field{Key: "state", Value: rep.State},
		logging.Field{Key: "audits", Value: len(rep.Audits)},
		logging.Field{Key: "failures", Value: len(rep.Failures)},
		logging.Field{Key: "skipped", Value: len(rep.Skipped)},
	)
	return rep, nil
}

// invoke calls one rule under its own timeout. A rule that ignores its
// context is left running and its late result dropped.
func (e *Executor) invoke(ctx context.Context, i int, call func(context.Context, int) (*Audit, error)) outcome {
	rctx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Debug("rule panic stack", logging.Field{Key: "stack", Value: string(debug.Stack())})
				done <- outcome{err: fmt.Errorf("%w: %v", ErrRulePanicked, r), panicked: true}
			}
		}()
		a, err := call(rctx, i)
		done <- outcome{audit: a, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-rctx.Done():
		return outcome{err: fmt.Errorf("audit: rule timed out: %w", rctx.Err())}
	}
}
