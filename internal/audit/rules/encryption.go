package rules

import (
	"context"
	"fmt"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/page"
)

// Encryption checks that the page was served over HTTPS.
type Encryption struct{}

func (Encryption) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryInformationArchitecture,
		Subcategory: audit.SubcategorySecurity,
		Name:        audit.NameEncrypted,
		Level:       audit.LevelPage,
	}
}

func (r Encryption) Execute(ctx context.Context, _ audit.Run, p *page.PageState, _ audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	is := securityIssue(p)
	score, err := audit.NewScore(is)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Pages should only be served over an encrypted connection.", score)
}

func securityIssue(p *page.PageState) audit.Issue {
	is := audit.Issue{
		Kind:      audit.IssueGeneric,
		Priority:  priorityFor(p.Secure(), audit.PriorityHigh),
		Labels:    []string{"security", "https"},
		Points:    pointsFor(p.Secure()),
		MaxPoints: 1,
	}
	if p.Secure() {
		is.Title = "Page is encrypted"
		is.Description = fmt.Sprintf("%s is served over HTTPS.", quote(p.URL()))
	} else {
		is.Title = "Page is not encrypted"
		is.Description = fmt.Sprintf("%s is served without TLS. Browsers flag such pages as not secure.", quote(p.URL()))
		is.Recommendation = "Serve the page over HTTPS and redirect plain HTTP requests."
	}
	return is
}

// DomainEncryption scores the share of a site's pages served over HTTPS, one
// issue per page.
type DomainEncryption struct{}

func (DomainEncryption) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryInformationArchitecture,
		Subcategory: audit.SubcategorySecurity,
		Name:        audit.NameDomainEncryption,
		Level:       audit.LevelDomain,
	}
}

func (r DomainEncryption) ExecuteDomain(ctx context.Context, _ audit.Run, d *page.Domain, _ audit.DesignSystem) (*audit.Audit, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain", audit.ErrInvalidInput)
	}
	if len(d.Pages) == 0 {
		return nil, audit.ErrNotApplicable
	}
	issues := make([]audit.Issue, 0, len(d.Pages))
	secure := 0
	for _, p := range d.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Secure() {
			secure++
		}
		issues = append(issues, securityIssue(p))
	}
	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	rationale := fmt.Sprintf("%d of %d pages are served over HTTPS.", secure, len(d.Pages))
	return audit.New(r.Meta(), d.URL, rationale, score)
}
