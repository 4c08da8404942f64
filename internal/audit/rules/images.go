package rules

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

// AltText checks that every image carries an alt attribute. An empty alt
// marks a decorative image and passes.
type AltText struct{}

func (AltText) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAccessibility,
		Subcategory: audit.SubcategoryImagery,
		Name:        audit.NameAltText,
		Level:       audit.LevelPage,
	}
}

func (r AltText) Execute(ctx context.Context, _ audit.Run, p *page.PageState, _ audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	imgs := p.ElementsByTag("img")
	if len(imgs) == 0 {
		return nil, audit.ErrNotApplicable
	}
	issues := make([]audit.Issue, 0, len(imgs))
	for _, el := range imgs {
		_, ok := el.Attr("alt")
		src, _ := el.Attr("src")
		is := audit.Issue{
			Kind:      audit.IssueElement,
			Priority:  priorityFor(ok, audit.PriorityHigh),
			WCAG:      "1.1.1",
			Labels:    []string{"alt-text"},
			Points:    pointsFor(ok),
			MaxPoints: 1,
			Elements:  []string{el.Key()},
			Element:   &audit.ElementDetail{ElementKey: el.Key(), Locator: el.Locator(), Tag: el.Tag()},
		}
		if ok {
			is.Title = "Image has alternative text"
			is.Description = fmt.Sprintf("Image %s has an alt attribute.", quote(src))
		} else {
			is.Title = "Image is missing alternative text"
			is.Description = fmt.Sprintf("Image %s has no alt attribute, so screen readers cannot describe it.", quote(src))
			is.Recommendation = `Add an alt attribute describing the image, or alt="" if it is decorative.`
		}
		issues = append(issues, is)
	}
	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Images need a text alternative for assistive technology.", score)
}

// ImagePolicy classifies each image and flags characteristics the design
// system does not allow. It does not apply without a classifier.
type ImagePolicy struct {
	Classifier ImageClassifier
	Timeout    time.Duration
	Logger     logging.Logger
}

func (ImagePolicy) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAesthetics,
		Subcategory: audit.SubcategoryImagery,
		Name:        audit.NameImagePolicy,
		Level:       audit.LevelPage,
	}
}

func (r ImagePolicy) Execute(ctx context.Context, run audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	if r.Classifier == nil {
		return nil, audit.ErrNotApplicable
	}
	ds = ds.Normalize()
	logger := ruleLogger(r.Logger, run, r.Meta())
	base, _ := url.Parse(p.URL())

	var issues []audit.Issue
	seen := make(map[string]bool)
	for _, el := range p.ElementsByTag("img") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, ok := el.Attr("src")
		if !ok || strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
			continue
		}
		abs := resolve(base, src)
		if seen[abs] {
			continue
		}
		seen[abs] = true

		cls, err := r.classify(ctx, abs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("skipping unclassified image", logging.Field{Key: "image", Value: abs}, logging.Err(err))
			continue
		}
		var violations []string
		for _, c := range cls.Characteristics {
			if !ds.Allows(c) {
				violations = append(violations, string(c))
			}
		}
		sort.Strings(violations)
		ok = len(violations) == 0
		is := audit.Issue{
			Kind:      audit.IssueStockImage,
			Priority:  priorityFor(ok, audit.PriorityMedium),
			Labels:    []string{"imagery"},
			Points:    pointsFor(ok),
			MaxPoints: 1,
			Elements:  []string{el.Key()},
			StockImage: &audit.StockImageDetail{
				ElementKey: el.Key(),
				ImageURL:   abs,
				Labels:     cls.Labels,
				Violations: violations,
			},
		}
		if ok {
			is.Title = "Image fits the design system"
			is.Description = fmt.Sprintf("Image %s matches the allowed imagery.", quote(abs))
		} else {
			is.Title = "Image breaks the imagery policy"
			is.Description = fmt.Sprintf("Image %s shows %s, which the design system does not allow.", quote(abs), strings.Join(violations, ", "))
			is.Recommendation = "Replace the image with one that fits the brand's imagery guidelines."
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
	return audit.New(r.Meta(), p.URL(), "Imagery should follow the design system's policy.", score)
}

func (r ImagePolicy) classify(ctx context.Context, imageURL string) (audit.ImageClassification, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return r.Classifier.Classify(ctx, imageURL)
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
