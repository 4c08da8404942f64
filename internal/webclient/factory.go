package webclient

import (
	"fmt"
	"strings"

	"github.com/raysh454/glimpse/internal/logging"
)

// New constructs the configured backend. An empty backend means nethttp.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	backend := Client(strings.ToLower(strings.TrimSpace(string(cfg.Client))))
	switch backend {
	case "", ClientNetHTTP:
		return NewNetHTTPClient(cfg, logger, nil)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Client)
}
