package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/audit/rules"
	"github.com/raysh454/glimpse/internal/capture"
	"github.com/raysh454/glimpse/internal/journey"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/readability"
	"github.com/raysh454/glimpse/internal/score"
	"github.com/raysh454/glimpse/internal/session"
	"github.com/raysh454/glimpse/internal/store"
)

var (
	ErrJobNotFound   = errors.New("app: job not found")
	ErrEmptyRequest  = errors.New("app: audit request has no urls or pages")
	ErrNoCapturer    = errors.New("app: no capturer configured")
	ErrNothingAudits = errors.New("app: no page could be audited")
	ErrJobNotDone    = errors.New("app: job has no summary yet")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventPage     JobEventType = "page"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	Progress *score.ProgressUpdate `json:"progress,omitempty"`
	// URL is set on page events.
	URL     string         `json:"url,omitempty"`
	Summary *score.Summary `json:"summary,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// PageError records a page that could not be captured or audited.
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type Job struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id,omitempty"`
	URLs      []string      `json:"urls"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Progress   score.ProgressUpdate `json:"progress"`
	Reports    []*audit.Report      `json:"reports,omitempty"`
	Domain     *audit.Report        `json:"domain,omitempty"`
	Summary    *score.Summary       `json:"summary,omitempty"`
	PageErrors []PageError          `json:"page_errors,omitempty"`
}

// AuditRequest describes one audit job. Supplied pages are audited as given;
// URLs are captured first. The design system comes from the session when
// SessionID is set, else from Design, else from the configured default.
type AuditRequest struct {
	URLs      []string            `json:"urls"`
	Pages     []*page.PageState   `json:"pages,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Design    *audit.DesignSystem `json:"design_system,omitempty"`
	// Rules limits the page rules run. Empty runs all of them.
	Rules []audit.Name `json:"rules,omitempty"`
}

// Deps are the components the orchestrator drives. Capturer, Blobs and
// Classifier are optional.
type Deps struct {
	Repo       store.Repository
	Blobs      *store.BlobStore
	Capturer   capture.Capturer
	Sessions   *session.Registry
	Classifier rules.ImageClassifier
}

type Orchestrator struct {
	cfg    *Config
	deps   Deps
	logger logging.Logger

	executor    *audit.Executor
	pageRules   []audit.Rule
	domainRules []audit.DomainRule
	saver       *journey.Saver

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	wg         sync.WaitGroup
}

// NewOrchestrator wires the rule set and executor around deps.
func NewOrchestrator(cfg *Config, deps Deps, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("app: orchestrator needs a repository")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry(logger)
	}
	logger = logger.With(logging.Field{Key: "component", Value: "orchestrator"})

	pageRules, domainRules := rules.Default(rules.Options{
		Scorer:          readability.Flesch{},
		Classifier:      deps.Classifier,
		ClassifyTimeout: cfg.Classifier.Timeout,
		Logger:          logger,
	})
	return &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		logger:      logger,
		executor:    audit.NewExecutor(cfg.Audit, logger),
		pageRules:   pageRules,
		domainRules: domainRules,
		saver:       journey.NewSaver(deps.Repo, logger),
		jobs:        make(map[string]*Job),
		jobCancels:  make(map[string]context.CancelFunc),
	}, nil
}

func (o *Orchestrator) Sessions() *session.Registry { return o.deps.Sessions }

func (o *Orchestrator) Repository() store.Repository { return o.deps.Repo }

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) updateJob(jobID string, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	o.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Error = msg
	})
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: msg})
}

// designFor resolves the design system for req.
func (o *Orchestrator) designFor(req AuditRequest) (audit.DesignSystem, error) {
	if req.SessionID != "" {
		s, err := o.deps.Sessions.Get(req.SessionID)
		if err != nil {
			return audit.DesignSystem{}, err
		}
		return s.Design, nil
	}
	if req.Design != nil {
		ds := req.Design.Normalize()
		if err := ds.Validate(); err != nil {
			return audit.DesignSystem{}, err
		}
		return ds, nil
	}
	return o.cfg.Design.Normalize(), nil
}

// StartAuditJob validates req and runs it in the background. Progress and the
// final summary are sent on the job's Events channel, which is closed when
// the job ends.
func (o *Orchestrator) StartAuditJob(ctx context.Context, req AuditRequest) (*Job, error) {
	if len(req.URLs) == 0 && len(req.Pages) == 0 {
		return nil, ErrEmptyRequest
	}
	for i, p := range req.Pages {
		if p == nil {
			return nil, fmt.Errorf("%w: page %d is nil", audit.ErrInvalidInput, i)
		}
	}
	if len(req.URLs) > 0 && o.deps.Capturer == nil {
		return nil, ErrNoCapturer
	}
	ds, err := o.designFor(req)
	if err != nil {
		return nil, err
	}
	pageRules := rules.Select(o.pageRules, req.Rules)
	if len(pageRules) == 0 {
		return nil, fmt.Errorf("%w: no known rule in %v", audit.ErrInvalidInput, req.Rules)
	}
	o.pruneJobs()

	jobID := uuid.New().String()
	urls := append([]string(nil), req.URLs...)
	for _, p := range req.Pages {
		urls = append(urls, p.URL())
	}
	job := &Job{
		ID:        jobID,
		SessionID: req.SessionID,
		URLs:      urls,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}

	jobCtx, cancel := context.WithCancel(ctx)
	o.jobsMu.Lock()
	o.jobs[jobID] = job
	o.jobCancels[jobID] = cancel
	o.jobsMu.Unlock()

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.jobsMu.Lock()
			if c, ok := o.jobCancels[jobID]; ok {
				c()
				delete(o.jobCancels, jobID)
			}
			j := o.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			o.jobsMu.Unlock()

			// Close events channel so websocket loop can terminate cleanly
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.setStatus(jobID, JobRunning, nil)
		logger := o.logger.With(logging.Field{Key: "job_id", Value: jobID})

		summary, err := o.runAudit(jobCtx, jobID, req, ds, pageRules, logger)
		switch {
		case jobCtx.Err() != nil:
			logger.Info("audit job canceled")
			o.setStatus(jobID, JobCanceled, nil)
		case err != nil:
			logger.Error("audit job failed", logging.Err(err))
			o.setStatus(jobID, JobFailed, err)
		default:
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Summary: summary})
			o.setStatus(jobID, JobDone, nil)
			logger.Info("audit job done", logging.Field{Key: "overall", Value: summary.Overall.Percent})
		}
	}()

	return o.GetJob(jobID), nil
}

type target struct {
	url  string
	page *page.PageState
}

func (o *Orchestrator) runAudit(ctx context.Context, jobID string, req AuditRequest, ds audit.DesignSystem, pageRules []audit.Rule, logger logging.Logger) (*score.Summary, error) {
	targets := make([]target, 0, len(req.URLs)+len(req.Pages))
	for _, u := range req.URLs {
		targets = append(targets, target{url: u})
	}
	for _, p := range req.Pages {
		targets = append(targets, target{url: p.URL(), page: p})
	}

	progress := score.NewProgress()
	for range targets {
		progress.Expect(metasOf(pageRules)...)
	}
	for _, r := range o.domainRules {
		progress.Expect(r.Meta())
	}
	publish := func() {
		u := progress.Update()
		o.updateJob(jobID, func(j *Job) { j.Progress = u })
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Progress: &u})
	}
	run := audit.Run{
		ID:     jobID,
		Logger: logger,
		Observe: func(meta audit.Meta, a *audit.Audit, err error) {
			if a != nil && err == nil {
				progress.Record(a)
			} else {
				progress.Fail(meta)
			}
			publish()
		},
	}

	var (
		audited []*page.PageState
		all     []*audit.Audit
	)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, rep, err := o.auditPage(ctx, run, t, ds, pageRules)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("page not audited", logging.Field{Key: "url", Value: t.url}, logging.Err(err))
			for _, m := range metasOf(pageRules) {
				progress.Fail(m)
			}
			publish()
			o.updateJob(jobID, func(j *Job) {
				j.PageErrors = append(j.PageErrors, PageError{URL: t.url, Error: err.Error()})
			})
			continue
		}
		audited = append(audited, p)
		all = append(all, rep.Audits...)
		o.updateJob(jobID, func(j *Job) { j.Reports = append(j.Reports, rep) })
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventPage, URL: p.URL()})
	}
	if len(audited) == 0 {
		progress.Abort()
		publish()
		return nil, ErrNothingAudits
	}

	if len(o.domainRules) > 0 {
		rep, err := o.auditDomain(ctx, run, audited, ds)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			progress.Abort()
			publish()
			return nil, err
		}
		all = append(all, rep.Audits...)
		o.updateJob(jobID, func(j *Job) { j.Domain = rep })
	}

	summary := score.RollUp(all)
	o.updateJob(jobID, func(j *Job) { j.Summary = &summary })
	publish()
	return &summary, nil
}

// auditPage captures the target if needed, archives it, runs the page rules
// and persists the resulting audits.
func (o *Orchestrator) auditPage(ctx context.Context, run audit.Run, t target, ds audit.DesignSystem, pageRules []audit.Rule) (*page.PageState, *audit.Report, error) {
	p := t.page
	var raw []byte
	if p == nil {
		var err error
		p, raw, err = o.deps.Capturer.Capture(ctx, t.url)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := o.savePage(ctx, p, raw); err != nil {
		return nil, nil, err
	}
	rep, err := o.executor.RunPage(ctx, run, p, ds, pageRules)
	if err != nil {
		return nil, nil, err
	}
	if err := o.persistAudits(ctx, rep.Audits, p.Key()); err != nil {
		return nil, nil, err
	}
	return p, rep, nil
}

func (o *Orchestrator) auditDomain(ctx context.Context, run audit.Run, pages []*page.PageState, ds audit.DesignSystem) (*audit.Report, error) {
	d, err := page.NewDomain(siteOf(pages[0].URL()), pages)
	if err != nil {
		return nil, err
	}
	rep, err := o.executor.RunDomain(ctx, run, d, ds, o.domainRules)
	if err != nil {
		return nil, err
	}
	if err := o.persistAudits(ctx, rep.Audits, ""); err != nil {
		return nil, err
	}
	return rep, nil
}

type pageRecord struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Secure bool   `json:"secure"`
	// HTML is the blob digest of the captured body.
	HTML string `json:"html,omitempty"`
}

func (o *Orchestrator) savePage(ctx context.Context, p *page.PageState, raw []byte) error {
	payload := pageRecord{URL: p.URL(), Title: p.Title(), Secure: p.Secure()}
	if o.cfg.ArchivePages && o.deps.Blobs != nil && len(raw) > 0 {
		digest, err := o.deps.Blobs.Put(raw)
		if err != nil {
			return fmt.Errorf("archiving %s: %w", p.URL(), err)
		}
		payload.HTML = digest
	}
	rec, err := store.NewRecord(p.Key(), payload)
	if err != nil {
		return err
	}
	if _, _, err := o.deps.Repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving page %s: %w", p.URL(), err)
	}
	return nil
}

// persistAudits stores each audit and its issues, linking audit to issue with
// HAS_ISSUE and, when pageKey is set, audit to page with AUDIT_OF.
func (o *Orchestrator) persistAudits(ctx context.Context, audits []*audit.Audit, pageKey string) error {
	repo := o.deps.Repo
	for _, a := range audits {
		rec, err := store.NewRecord(a.Key(), a)
		if err != nil {
			return err
		}
		if _, _, err := repo.Save(ctx, rec); err != nil {
			return fmt.Errorf("saving audit %s: %w", a.Name(), err)
		}
		if pageKey != "" {
			if err := repo.AddRelationship(ctx, a.Key(), pageKey, store.RelAuditOf); err != nil {
				return fmt.Errorf("linking audit %s: %w", a.Name(), err)
			}
		}
		for _, is := range a.Issues() {
			key := is.Key()
			irec, err := store.NewRecord(key, is)
			if err != nil {
				return err
			}
			if _, _, err := repo.Save(ctx, irec); err != nil {
				return fmt.Errorf("saving issue of %s: %w", a.Name(), err)
			}
			if err := repo.AddRelationship(ctx, a.Key(), key, store.RelHasIssue); err != nil {
				return fmt.Errorf("linking issue of %s: %w", a.Name(), err)
			}
		}
	}
	return nil
}

func metasOf(rs []audit.Rule) []audit.Meta {
	out := make([]audit.Meta, len(rs))
	for i, r := range rs {
		out[i] = r.Meta()
	}
	return out
}

// siteOf reduces a page URL to scheme://host.
func siteOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// CancelJob stops a running job. Unknown or finished jobs are ignored.
func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	cp.URLs = append([]string(nil), j.URLs...)
	cp.Reports = append([]*audit.Report(nil), j.Reports...)
	cp.PageErrors = append([]PageError(nil), j.PageErrors...)
	return &cp
}

// CompareJobs diffs the roll-ups of two finished jobs, typically two audits
// of the same site before and after a change.
func (o *Orchestrator) CompareJobs(baseID, headID string) (score.Delta, error) {
	summaries := make([]score.Summary, 0, 2)
	for _, id := range []string{baseID, headID} {
		j := o.GetJob(id)
		if j == nil {
			return score.Delta{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if j.Summary == nil {
			return score.Delta{}, fmt.Errorf("%w: %s is %s", ErrJobNotDone, id, j.Status)
		}
		summaries = append(summaries, *j.Summary)
	}
	return score.Diff(summaries[0], summaries[1]), nil
}

// ListJobs returns snapshots of every retained job, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	o.jobsMu.Unlock()

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if j := o.GetJob(id); j != nil {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].StartedAt.After(out[k].StartedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// pruneJobs drops finished jobs older than the retention window.
func (o *Orchestrator) pruneJobs() {
	if o.cfg.JobRetention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-o.cfg.JobRetention)
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	for id, j := range o.jobs {
		if !j.EndedAt.IsZero() && j.EndedAt.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

// Shutdown cancels running jobs and waits for them to wind down or for ctx
// to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.jobsMu.Lock()
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
