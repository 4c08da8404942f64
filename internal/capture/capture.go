// Package capture turns a URL into a page snapshot, either from static HTML
// or from a headless browser with computed styles.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/webclient"
)

var (
	ErrUnknownBackend = errors.New("capture: unknown backend")
	ErrBadStatus      = errors.New("capture: unexpected status")
)

// Capturer snapshots one page. The raw HTML is returned alongside so it can
// be archived.
type Capturer interface {
	Capture(ctx context.Context, url string) (*page.PageState, []byte, error)
	Close() error
}

type Backend string

const (
	BackendStatic   Backend = "static"
	BackendChromedp Backend = "chromedp"
)

type Config struct {
	Backend  Backend `yaml:"backend" json:"backend"`
	Headless bool    `yaml:"headless" json:"headless"`
	// IdleAfter is how long the network must stay quiet before a browser
	// capture reads the DOM.
	IdleAfter time.Duration `yaml:"idle_after" json:"idle_after"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Backend:   BackendStatic,
		Headless:  true,
		IdleAfter: 500 * time.Millisecond,
		Timeout:   45 * time.Second,
	}
}

// New builds the configured capturer. The static backend fetches through wc.
func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (Capturer, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case "", BackendStatic:
		return NewStaticCapturer(wc, logger), nil
	case BackendChromedp:
		return NewChromeCapturer(cfg, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// StaticCapturer fetches HTML and reads only inline styles.
type StaticCapturer struct {
	wc     webclient.WebClient
	logger logging.Logger
}

func NewStaticCapturer(wc webclient.WebClient, logger logging.Logger) *StaticCapturer {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &StaticCapturer{wc: wc, logger: logger.With(logging.Field{Key: "component", Value: "static_capture"})}
}

func (s *StaticCapturer) Capture(ctx context.Context, url string) (*page.PageState, []byte, error) {
	resp, err := s.wc.Get(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("capture %s: %w", url, err)
	}
	if !resp.OK() {
		return nil, nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, resp.StatusCode)
	}
	final := resp.FinalURL
	if final == "" {
		final = url
	}
	p, err := page.FromHTML(final, resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("capture %s: %w", url, err)
	}
	s.logger.Debug("captured page",
		logging.Field{Key: "url", Value: final},
		logging.Field{Key: "elements", Value: len(p.Elements())})
	return p, resp.Body, nil
}

func (s *StaticCapturer) Close() error { return nil }
