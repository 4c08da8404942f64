package audit

import (
	"context"

	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

// Run is the per-run context handed to every rule.
type Run struct {
	ID     string
	Logger logging.Logger
	// Observe, when set, is called as each rule finishes with its audit or
	// error. It is called from worker goroutines.
	Observe func(meta Meta, a *Audit, err error)
}

func (r Run) logger() logging.Logger {
	if r.Logger == nil {
		return logging.Nop{}
	}
	return r.Logger
}

// Rule scores one page. Implementations must not keep state between calls
// and must not assume anything about other rules. A rule that does not apply
// returns ErrNotApplicable.
type Rule interface {
	Meta() Meta
	Execute(ctx context.Context, run Run, p *page.PageState, ds DesignSystem) (*Audit, error)
}

// DomainRule scores a whole site.
type DomainRule interface {
	Meta() Meta
	ExecuteDomain(ctx context.Context, run Run, d *page.Domain, ds DesignSystem) (*Audit, error)
}
