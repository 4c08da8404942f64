package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/contrast"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

// TextContrast checks every visible text element against the contrast its
// size requires at the design system's compliance level.
type TextContrast struct {
	Logger logging.Logger
}

func (TextContrast) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAesthetics,
		Subcategory: audit.SubcategoryColorManagement,
		Name:        audit.NameTextContrast,
		Level:       audit.LevelPage,
	}
}

func (r TextContrast) Execute(ctx context.Context, run audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	level := ds.Normalize().ComplianceLevel
	if _, ok := contrast.TextMinimum(level, false); !ok {
		return nil, audit.ErrNotApplicable
	}
	logger := ruleLogger(r.Logger, run, r.Meta())

	var issues []audit.Issue
	for _, el := range textElements(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bg, err := background(p, el)
		if err != nil {
			logger.Warn("skipping element with unreadable background", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
			continue
		}
		fg, err := foreground(el, bg)
		if err != nil {
			logger.Warn("skipping element with unreadable colour", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
			continue
		}
		large := contrast.IsLargeText(el.FontSizePx(), el.Bold())
		required, _ := contrast.TextMinimum(level, large)
		issues = append(issues, contrastIssue(el, fg, bg, required, large, "1.4.3"))
	}
	if len(issues) == 0 {
		return nil, audit.ErrNotApplicable
	}

	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	rationale := fmt.Sprintf("Text at level %s needs a contrast ratio of at least %s, or %s when large.",
		level, ratioText(mustMinimum(level, false)), ratioText(mustMinimum(level, true)))
	return audit.New(r.Meta(), p.URL(), rationale, score)
}

// NonTextContrast checks that interactive components stand out from what is
// behind them, through either their fill or their border.
type NonTextContrast struct {
	Logger logging.Logger
}

func (NonTextContrast) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAesthetics,
		Subcategory: audit.SubcategoryColorManagement,
		Name:        audit.NameNonTextContrast,
		Level:       audit.LevelPage,
	}
}

func (r NonTextContrast) Execute(ctx context.Context, run audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	if _, ok := contrast.TextMinimum(ds.Normalize().ComplianceLevel, false); !ok {
		return nil, audit.ErrNotApplicable
	}
	logger := ruleLogger(r.Logger, run, r.Meta())

	var issues []audit.Issue
	for _, el := range p.Elements() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !component(el) || hidden(el) {
			continue
		}
		surround := contrast.White
		if parent, ok := p.Parent(el); ok {
			bg, err := background(p, parent)
			if err != nil {
				logger.Warn("skipping component with unreadable surround", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
				continue
			}
			surround = bg
		}
		fill, err := background(p, el)
		if err != nil {
			logger.Warn("skipping component with unreadable fill", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
			continue
		}

		best, against := contrast.Ratio(fill, surround), fill
		if border, ok := borderColor(el); ok {
			b := contrast.Blend(border, surround)
			if r := contrast.Ratio(b, surround); r > best {
				best, against = r, b
			}
		}
		is := contrastIssue(el, against, surround, contrast.NonTextMinimum, false, "1.4.11")
		is.ColorContrast.Ratio = round2(best)
		issues = append(issues, is)
	}
	if len(issues) == 0 {
		return nil, audit.ErrNotApplicable
	}

	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Buttons and form controls need a contrast ratio of 3:1 against their surroundings.", score)
}

func contrastIssue(el page.ElementState, fg, bg contrast.Color, required float64, large bool, wcag string) audit.Issue {
	ratio := contrast.Ratio(fg, bg)
	ok := ratio >= required
	detail := &audit.ColorContrastDetail{
		ElementKey: el.Key(),
		Locator:    el.Locator(),
		Foreground: fg.Hex(),
		Background: bg.Hex(),
		Ratio:      round2(ratio),
		Required:   required,
		LargeText:  large,
	}
	is := audit.Issue{
		Kind:          audit.IssueColorContrast,
		Priority:      priorityFor(ok, audit.PriorityHigh),
		WCAG:          wcag,
		Labels:        []string{"contrast"},
		Points:        pointsFor(ok),
		MaxPoints:     1,
		Elements:      []string{el.Key()},
		ColorContrast: detail,
	}
	subject := describe(el)
	if ok {
		is.Title = "Sufficient contrast"
		is.Description = fmt.Sprintf("%s has a contrast ratio of %s.", subject, ratioText(ratio))
		return is
	}
	is.Title = "Insufficient contrast"
	is.Description = fmt.Sprintf("%s has a contrast ratio of %s but needs %s.", subject, ratioText(ratio), ratioText(required))
	if s, err := contrast.FindCompliant(fg, bg, required, contrast.Auto); err == nil {
		detail.Suggested = s.Color.Hex()
		detail.Shift = s.Shift
		is.Recommendation = fmt.Sprintf("Change %s to %s.", fg.Hex(), s.Color.Hex())
	} else {
		is.Recommendation = fmt.Sprintf("No shade of %s reaches %s on %s; change the background.", fg.Hex(), ratioText(required), bg.Hex())
	}
	return is
}

func describe(el page.ElementState) string {
	if t := el.OwnedText(); t != "" {
		return fmt.Sprintf("%q", quote(t))
	}
	if v, ok := el.Attr("aria-label"); ok && v != "" {
		return fmt.Sprintf("%s %q", el.Tag(), quote(v))
	}
	return "<" + el.Tag() + ">"
}

func component(el page.ElementState) bool {
	switch el.Tag() {
	case "button", "select", "textarea":
		return true
	case "input":
		t, _ := el.Attr("type")
		return !strings.EqualFold(t, "hidden")
	}
	role, _ := el.Attr("role")
	return strings.EqualFold(role, "button")
}

// borderColor returns a visible border's colour.
func borderColor(el page.ElementState) (contrast.Color, bool) {
	width, style, color := el.CSS("border-width"), el.CSS("border-style"), el.CSS("border-color")
	if b := el.CSS("border"); b != "" {
		for _, part := range strings.Fields(b) {
			switch {
			case strings.HasSuffix(part, "px") || part == "0":
				width = part
			case part == "solid" || part == "dashed" || part == "dotted" || part == "double" || part == "none":
				style = part
			default:
				color = part
			}
		}
	}
	if style == "none" || color == "" {
		return contrast.Color{}, false
	}
	if w, err := strconv.ParseFloat(strings.TrimSuffix(width, "px"), 64); width != "" && (err != nil || w <= 0) {
		return contrast.Color{}, false
	}
	c, err := contrast.Parse(color)
	if err != nil || c.A == 0 {
		return contrast.Color{}, false
	}
	return c, true
}

func mustMinimum(level contrast.Level, large bool) float64 {
	m, _ := contrast.TextMinimum(level, large)
	return m
}

func ratioText(r float64) string {
	return strconv.FormatFloat(round2(r), 'f', -1, 64) + ":1"
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func ruleLogger(l logging.Logger, run audit.Run, meta audit.Meta) logging.Logger {
	if l == nil {
		l = logging.Nop{}
	}
	return l.With(logging.Field{Key: "rule", Value: meta.Name}, logging.Field{Key: "run", Value: run.ID})
}
