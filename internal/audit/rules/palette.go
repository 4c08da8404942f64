package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/contrast"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

// ColorPalette checks that the colours used for text and backgrounds come
// from the design system's palette. It does not apply without a palette.
type ColorPalette struct {
	Logger logging.Logger
}

func (ColorPalette) Meta() audit.Meta {
	return audit.Meta{
		Category:    audit.CategoryAesthetics,
		Subcategory: audit.SubcategoryColorManagement,
		Name:        audit.NameColorPalette,
		Level:       audit.LevelPage,
	}
}

func (r ColorPalette) Execute(ctx context.Context, run audit.Run, p *page.PageState, ds audit.DesignSystem) (*audit.Audit, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", audit.ErrInvalidInput)
	}
	ds = ds.Normalize()
	if len(ds.Palette) == 0 {
		return nil, audit.ErrNotApplicable
	}
	palette := make([]contrast.Color, 0, len(ds.Palette))
	for _, s := range ds.Palette {
		c, err := contrast.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: palette: %v", audit.ErrInvalidInput, err)
		}
		palette = append(palette, contrast.Blend(c, contrast.White))
	}
	logger := ruleLogger(r.Logger, run, r.Meta())

	// one issue per distinct colour, in first-use order
	var order []string
	first := make(map[string]page.ElementState)
	users := make(map[string][]string)
	for _, el := range p.Elements() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hidden(el) {
			continue
		}
		for _, prop := range []string{"color", "background-color"} {
			v := el.CSS(prop)
			if v == "" {
				continue
			}
			c, err := contrast.Parse(v)
			if err != nil {
				logger.Debug("skipping unreadable colour", logging.Field{Key: "locator", Value: el.Locator()}, logging.Err(err))
				continue
			}
			if c.A == 0 {
				continue
			}
			hex := contrast.Blend(c, contrast.White).Hex()
			if _, ok := first[hex]; !ok {
				first[hex] = el
				order = append(order, hex)
			}
			users[hex] = append(users[hex], el.Key())
		}
	}
	if len(order) == 0 {
		return nil, audit.ErrNotApplicable
	}

	issues := make([]audit.Issue, 0, len(order))
	for _, hex := range order {
		c, _ := contrast.Parse(hex)
		nearest, dist := nearestColor(c, palette)
		ok := dist <= ds.PaletteTolerance
		el := first[hex]
		is := audit.Issue{
			Kind:      audit.IssueColorPalette,
			Priority:  priorityFor(ok, audit.PriorityLow),
			Labels:    []string{"palette"},
			Points:    pointsFor(ok),
			MaxPoints: 1,
			ColorPalette: &audit.ColorPaletteDetail{
				ElementKey: el.Key(),
				Locator:    el.Locator(),
				Color:      hex,
				Nearest:    nearest.Hex(),
				Distance:   round2(dist),
			},
		}
		for _, k := range users[hex] {
			is.AttachTo(k)
		}
		if ok {
			is.Title = "Colour is on palette"
			is.Description = fmt.Sprintf("%s matches palette colour %s.", hex, nearest.Hex())
		} else {
			is.Title = "Colour is off palette"
			is.Description = fmt.Sprintf("%s is not in the palette; the closest is %s.", hex, nearest.Hex())
			is.Recommendation = fmt.Sprintf("Replace %s with %s.", hex, nearest.Hex())
		}
		issues = append(issues, is)
	}
	score, err := audit.NewScore(issues...)
	if err != nil {
		return nil, err
	}
	return audit.New(r.Meta(), p.URL(), "Colours should come from the design system's palette.", score)
}

// nearestColor finds the palette entry with the smallest CIE76 difference
// from c, reported on the usual 0..100 lightness scale.
func nearestColor(c contrast.Color, palette []contrast.Color) (contrast.Color, float64) {
	lab := toColorful(c)
	best, bestDist := palette[0], math.Inf(1)
	for _, pc := range palette {
		if d := lab.DistanceCIE76(toColorful(pc)) * 100; d < bestDist {
			best, bestDist = pc, d
		}
	}
	return best, bestDist
}

func toColorful(c contrast.Color) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}
