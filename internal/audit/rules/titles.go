package rules

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/page"
)

const maxTitleRunes = 60

// Titles checks for a page title and that it fits in a search result.
type Titles struct{}

func (Titles) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryContent,
		Subcategory: audit.SubcategorySEO,
		Name:        audit.NameTitles,
		Level:       audit.LevelPage,
	}
}

func (r Titles) Execute(ctx context.Context, _ audit.Run, p *page.PageState, _ audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	title := strings.TrimSpace(p.Title())
	present := title != ""
	fits := utf8.RuneCountInString(title) <= maxTitleRunes

	is := audit.Issue{
		Kind:      audit.IssueGeneric,
		WCAG:      "2.4.2",
		Labels:    []string{"seo", "title"},
		MaxPoints: 2,
	}
	switch {
	case !present:
		is.Priority = audit.PriorityHigh
		is.Title = "Page has no title"
		is.Description = "The page has no <title>, so tabs and search results show its URL instead."
		is.Recommendation = "Add a short, unique title describing the page."
	case !fits:
		is.Priority = audit.PriorityLow
		is.Points = 1
		is.Title = "Page title is long"
		is.Description = fmt.Sprintf("Title %q is over %d characters and will be cut off in search results.", quote(title), maxTitleRunes)
		is.Recommendation = "Shorten the title and lead with the most specific words."
	default:
		is.Priority = audit.PriorityNone
		is.Points = 2
		is.Title = "Page has a title"
		is.Description = fmt.Sprintf("Title %q describes the page.", quote(title))
	}
	score, err := audit.NewScore(is)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Every page needs a concise title.", score)
}

// Headers checks the heading outline: one h1, and no level skipped on the way
// down.
type Headers struct{}

func (Headers) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryContent,
		Subcategory: audit.SubcategorySEO,
		Name:        audit.NameHeaders,
		Level:       audit.LevelPage,
	}
}

func (r Headers) Execute(ctx context.Context, _ audit.Run, p *page.PageState, _ audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	headings := p.ElementsByTag("h1", "h2", "h3", "h4", "h5", "h6")

	h1 := 0
	for _, h := range headings {
		if h.Tag() == "h1" {
			h1++
		}
	}
	single := audit.Issue{
		Kind:      audit.IssueGeneric,
		WCAG:      "1.3.1",
		Labels:    []string{"seo", "headings"},
		Points:    pointsFor(h1 == 1),
		MaxPoints: 1,
		Priority:  priorityFor(h1 == 1, audit.PriorityMedium),
	}
	switch h1 {
	case 0:
		single.Title = "Page has no main heading"
		single.Description = "The page has no h1."
		single.Recommendation = "Add one h1 naming the page's subject."
	case 1:
		single.Title = "Page has one main heading"
		single.Description = "The page has exactly one h1."
	default:
		single.Title = "Page has several main headings"
		single.Description = fmt.Sprintf("The page has %d h1 elements.", h1)
		single.Recommendation = "Keep one h1 and demote the others."
	}
	issues := []audit.Issue{single}

	prev := 0
	for _, h := range headings {
		level := int(h.Tag()[1] - '0')
		if prev > 0 && level > prev+1 {
			issues = append(issues, audit.Issue{
				Kind:           audit.IssueElement,
				Priority:       audit.PriorityLow,
				WCAG:           "1.3.1",
				Labels:         []string{"seo", "headings"},
				MaxPoints:      1,
				Title:          "Heading level skipped",
				Description:    fmt.Sprintf("%q is an h%d directly after an h%d.", quote(h.AllText()), level, prev),
				Recommendation: fmt.Sprintf("Use an h%d here or add the missing level.", prev+1),
				Elements:       []string{h.Key()},
				Element:        &audit.ElementDetail{ElementKey: h.Key(), Locator: h.Locator(), Tag: h.Tag()},
			})
		}
		prev = level
	}

	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Headings should form an outline with a single top level.", score)
}
