package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/glimpse/internal/capture"
	"github.com/raysh454/glimpse/internal/classifier"
	"github.com/raysh454/glimpse/internal/cli"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/session"
	"github.com/raysh454/glimpse/internal/store"
	"github.com/raysh454/glimpse/internal/webclient"
)

// Application is the global runtime state container. It owns every
// long-lived component and closes them in reverse order on Shutdown.
type Application struct {
	Config *Config
	Args   *cli.CLIArgs
	Logger logging.Logger
	Orch   *Orchestrator

	repo      store.Repository
	webClient webclient.WebClient
	capturer  capture.Capturer

	// internal context for cancellation / lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApplication builds every component named by cfg. On error, whatever was
// already opened is closed again.
func NewApplication(ctx context.Context, cfg *Config, args *cli.CLIArgs, logger logging.Logger) (_ *Application, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	a := &Application{Config: cfg, Args: args, Logger: logger}
	defer func() {
		if err != nil {
			a.closeComponents()
		}
	}()

	if a.repo, err = store.Open(ctx, cfg.Store, logger); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	var blobs *store.BlobStore
	if cfg.ArchivePages && cfg.Store.BlobDir != "" {
		if blobs, err = store.NewBlobStore(cfg.Store.BlobDir); err != nil {
			return nil, fmt.Errorf("opening blob store: %w", err)
		}
	}
	if a.webClient, err = webclient.New(cfg.WebClient, logger); err != nil {
		return nil, fmt.Errorf("creating web client: %w", err)
	}
	if a.capturer, err = capture.New(cfg.Capture, a.webClient, logger); err != nil {
		return nil, fmt.Errorf("creating capturer: %w", err)
	}

	deps := Deps{
		Repo:     a.repo,
		Blobs:    blobs,
		Capturer: a.capturer,
		Sessions: session.NewRegistry(logger),
	}
	if cfg.Classifier.Endpoint != "" {
		c, err := classifier.NewHTTPClassifier(cfg.Classifier, a.webClient, logger)
		if err != nil {
			return nil, fmt.Errorf("creating classifier: %w", err)
		}
		deps.Classifier = c
	} else {
		logger.Info("no classifier endpoint configured, image policy audits will be skipped")
	}

	if a.Orch, err = NewOrchestrator(cfg, deps, logger); err != nil {
		return nil, err
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// Start launches background housekeeping.
func (a *Application) Start() error {
	if a == nil || a.Orch == nil {
		return errors.New("application is not initialised")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "store", Value: a.Config.Store.Backend},
		logging.Field{Key: "capture", Value: a.Config.Capture.Backend},
	)
	if idle := a.Config.SessionIdle; idle > 0 {
		go a.expireSessions(idle)
	}
	return nil
}

func (a *Application) expireSessions(idle time.Duration) {
	t := time.NewTicker(idle / 4)
	defer t.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			a.Orch.Sessions().Expire(idle)
		}
	}
}

// Shutdown attempts a graceful shutdown, delegating to the orchestrator first.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	// Ask orchestrator to shut down first with a bounded timeout.
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if a.Orch != nil {
		if err := a.Orch.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("orchestrator shutdown returned error", logging.Err(err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	return a.closeComponents()
}

func (a *Application) closeComponents() error {
	var errs []error
	if a.capturer != nil {
		if err := a.capturer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.webClient != nil {
		if err := a.webClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
