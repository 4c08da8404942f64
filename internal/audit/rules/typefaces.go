package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/page"
)

// Typefaces counts the primary font families used by visible text.
type Typefaces struct{}

func (Typefaces) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAesthetics,
		Subcategory: audit.SubcategoryTypography,
		Name:        audit.NameTypefaces,
		Level:       audit.LevelPage,
	}
}

func (r Typefaces) Execute(ctx context.Context, _ audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	ds = ds.Normalize()

	users := make(map[string][]string)
	for _, el := range textElements(p) {
		if f := primaryFamily(el.CSS("font-family")); f != "" {
			users[f] = append(users[f], el.Key())
		}
	}
	if len(users) == 0 {
		return nil, audit.ErrNotApplicable
	}
	families := make([]string, 0, len(users))
	for f := range users {
		families = append(families, f)
	}
	sort.Strings(families)

	ok := len(families) <= ds.MaxTypefaces
	is := audit.Issue{
		Kind:      audit.IssueTypefaces,
		Priority:  priorityFor(ok, audit.PriorityLow),
		Labels:    []string{"typography"},
		Points:    pointsFor(ok),
		MaxPoints: 1,
		Typefaces: &audit.TypefacesDetail{Families: families, Allowed: ds.MaxTypefaces},
	}
	if ok {
		is.Title = "Typefaces are consistent"
		is.Description = fmt.Sprintf("The page uses %d typefaces: %s.", len(families), strings.Join(families, ", "))
	} else {
		is.Title = "Too many typefaces"
		is.Description = fmt.Sprintf("The page uses %d typefaces (%s) where %d are allowed.", len(families), strings.Join(families, ", "), ds.MaxTypefaces)
		is.Recommendation = "Limit text to the design system's font families."
		for _, f := range families {
			for _, k := range users[f] {
				is.AttachTo(k)
			}
		}
	}
	score, err := audit.NewScore(is)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "A page should stick to a small set of typefaces.", score)
}

// primaryFamily returns the first family of a font-family list, unquoted and
// lower-cased.
func primaryFamily(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.ToLower(strings.Trim(strings.TrimSpace(first), `"'`))
}
