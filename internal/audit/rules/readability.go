package rules

import (
	"context"
	"fmt"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/readability"
)

var proseTags = []string{"p", "li", "blockquote", "dd", "figcaption"}

// ReadingComplexity grades each prose block against the audience's reading
// level. Blocks the scorer cannot handle are skipped.
type ReadingComplexity struct {
	Scorer readability.EaseScorer
	Logger logging.Logger
}

func (ReadingComplexity) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryContent,
		Subcategory: audit.SubcategoryWrittenContent,
		Name:        audit.NameReadingComplexity,
		Level:       audit.LevelPage,
	}
}

func (r ReadingComplexity) Execute(ctx context.Context, run audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	logger := ruleLogger(r.Logger, run, r.Meta())
	audience := ds.Normalize().Audience
	audienceName := string(audience)
	if audienceName == "" {
		audienceName = "general"
	}

	var issues []audit.Issue
	for _, el := range p.ElementsByTag(proseTags...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := el.AllText()
		if hidden(el) || text == "" {
			continue
		}
		res, err := readability.ClassifyText(text, audience, r.Scorer)
		if err != nil {
			logger.Warn("skipping unscorable text", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
			continue
		}
		is := audit.Issue{
			Kind:      audit.IssueReadingComplexity,
			Priority:  readingPriority(res.Points),
			Labels:    []string{"readability"},
			Points:    res.Points,
			MaxPoints: readability.MaxPoints,
			Elements:  []string{el.Key()},
			ReadingComplexity: &audit.ReadingComplexityDetail{
				ElementKey: el.Key(),
				Locator:    el.Locator(),
				Ease:       round2(res.Ease),
				Words:      res.Words,
				Band:       res.Label,
				Audience:   audienceName,
			},
		}
		if res.Points == readability.MaxPoints {
			is.Title = "Text is easy to read"
			is.Description = fmt.Sprintf("%q reads as %s for a %s audience.", quote(text), res.Label, audienceName)
		} else {
			is.Title = "Text is hard to read"
			is.Description = fmt.Sprintf("%q scores %.0f on reading ease (%s), difficult for a %s audience.", quote(text), res.Ease, res.Label, audienceName)
			is.Recommendation = "Use shorter sentences and plainer words."
		}
		issues = append(issues, is)
	}
	if len(issues) == 0 {
		return nil, audit.ErrNotApplicable
	}
	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Written content should match the reading level of its audience.", score)
}

func readingPriority(points int) audit.Priority {
	switch {
	case points >= readability.MaxPoints:
		return audit.PriorityNone
	case points >= 3:
		return audit.PriorityLow
	case points >= 2:
		return audit.PriorityMedium
	}
	return audit.PriorityHigh
}
