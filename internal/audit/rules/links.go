package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/page"
)

// Links checks that every anchor goes somewhere and says where. Each anchor
// is worth two points: one for a usable href, one for an accessible name.
type Links struct{}

func (Links) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryInformationArchitecture,
		Subcategory: audit.SubcategoryLinks,
		Name:        audit.NameLinks,
		Level:       audit.LevelPage,
	}
}

func (r Links) Execute(ctx context.Context, _ audit.Run, p *page.PageState, _ audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	anchors := p.ElementsByTag("a")
	if len(anchors) == 0 {
		return nil, audit.ErrNotApplicable
	}
	issues := make([]audit.Issue, 0, len(anchors))
	for _, el := range anchors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		href, _ := el.Attr("href")
		usable := usableHref(href)
		name := accessibleName(p, el)
		named := name != ""

		points := pointsFor(usable) + pointsFor(named)
		is := audit.Issue{
			Kind:      audit.IssueElement,
			Priority:  linkPriority(usable, named),
			WCAG:      "2.4.4",
			Labels:    []string{"links"},
			Points:    points,
			MaxPoints: 2,
			Elements:  []string{el.Key()},
			Element:   &audit.ElementDetail{ElementKey: el.Key(), Locator: el.Locator(), Tag: el.Tag()},
		}
		label := name
		if label == "" {
			label = href
		}
		switch {
		case usable && named:
			is.Title = "Link is usable"
			is.Description = fmt.Sprintf("Link %q points to %s.", quote(label), quote(href))
		case !usable && !named:
			is.Title = "Link has no destination or text"
			is.Description = fmt.Sprintf("The link at %s has neither a destination nor text.", el.Locator())
			is.Recommendation = "Give the link a real href and visible text."
		case !usable:
			is.Title = "Link has no destination"
			is.Description = fmt.Sprintf("Link %q does not navigate anywhere.", quote(label))
			is.Recommendation = "Use a button for actions, or give the link a real href."
		default:
			is.Title = "Link has no accessible text"
			is.Description = fmt.Sprintf("The link to %s has no text for screen readers.", quote(href))
			is.Recommendation = "Add link text, an aria-label, or alt text on the linked image."
		}
		issues = append(issues, is)
	}
	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Links need a destination and a name that describes it.", score)
}

func usableHref(href string) bool {
	h := strings.TrimSpace(href)
	return h != "" && h != "#" && !strings.HasPrefix(strings.ToLower(h), "javascript:")
}

// accessibleName follows the usual precedence: aria-label, text, title, and
// finally the alt text of a contained image.
func accessibleName(p *page.PageState, el page.ElementState) string {
	if v, _ := el.Attr("aria-label"); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if t := strings.TrimSpace(el.AllText()); t != "" {
		return t
	}
	if v, _ := el.Attr("title"); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	prefix := el.Locator() + "/"
	for _, img := range p.ElementsByTag("img") {
		if !strings.HasPrefix(img.Locator(), prefix) {
			continue
		}
		if alt, _ := img.Attr("alt"); strings.TrimSpace(alt) != "" {
			return strings.TrimSpace(alt)
		}
	}
	return ""
}

func linkPriority(usable, named bool) audit.Priority {
	switch {
	case usable && named:
		return audit.PriorityNone
	case !named:
		return audit.PriorityHigh
	}
	return audit.PriorityMedium
}
