// Package rules holds the built-in audit rules.
package rules

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/contrast"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
	"github.com/raysh454/glimpse/internal/readability"
)

// ImageClassifier labels an image. Implementations usually call a remote
// service and may fail or time out.
type ImageClassifier interface {
	Classify(ctx context.Context, imageURL string) (audit.ImageClassification, error)
}

// Options configures the default rule set.
type Options struct {
	Scorer          readability.EaseScorer
	Classifier      ImageClassifier
	ClassifyTimeout time.Duration
	Logger          logging.Logger
}

// Default returns every built-in page rule and domain rule. ImagePolicy is
// included even without a classifier and then reports not applicable.
func Default(opts Options) ([]audit.Rule, []audit.DomainRule) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = 10 * time.Second
	}
	pageRules := []audit.Rule{
		Encryption{},
		TextContrast{Logger: opts.Logger},
		NonTextContrast{Logger: opts.Logger},
		ReadingComplexity{Scorer: opts.Scorer, Logger: opts.Logger},
		AltText{},
		Links{},
		Titles{},
		Headers{},
		Typefaces{},
		ColorPalette{Logger: opts.Logger},
		ImagePolicy{Classifier: opts.Classifier, Timeout: opts.ClassifyTimeout, Logger: opts.Logger},
	}
	domain := []audit.DomainRule{DomainEncryption{}}
	return pageRules, domain
}

// Select keeps the rules whose names are listed. An empty list keeps all.
func Select(rules []audit.Rule, names []audit.Name) []audit.Rule {
	if len(names) == 0 {
		return rules
	}
	want := make(map[audit.Name]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []audit.Rule
	for _, r := range rules {
		if want[r.Meta().Name] {
			out = append(out, r)
		}
	}
	return out
}

var strict = bluemonday.StrictPolicy()

const maxQuoted = 80

// quote makes page text safe to embed in an issue description: markup is
// stripped and long text shortened.
func quote(s string) string {
	s = strings.Join(strings.Fields(strict.Sanitize(s)), " ")
	if utf8.RuneCountInString(s) > maxQuoted {
		r := []rune(s)
		s = string(r[:maxQuoted]) + "..."
	}
	return s
}

// textElements returns elements carrying their own visible text.
func textElements(p *page.PageState) []page.ElementState {
	var out []page.ElementState
	for _, el := range p.Elements() {
		if strings.TrimSpace(el.OwnedText()) == "" || hidden(el) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func hidden(el page.ElementState) bool {
	if el.CSS("display") == "none" || el.CSS("visibility") == "hidden" {
		return true
	}
	_, ok := el.Attr("hidden")
	return ok
}

// background resolves the colour behind el by compositing its own and its
// ancestors' background colours over white.
func background(p *page.PageState, el page.ElementState) (contrast.Color, error) {
	chain := append([]page.ElementState{el}, p.Ancestors(el)...)
	var layers []contrast.Color
	for _, e := range chain {
		v := e.CSS("background-color")
		if v == "" {
			continue
		}
		c, err := contrast.Parse(v)
		if err != nil {
			return contrast.Color{}, err
		}
		if c.A == 0 {
			continue
		}
		layers = append(layers, c)
		if c.Opaque() {
			break
		}
	}
	bg := contrast.White
	for i := len(layers) - 1; i >= 0; i-- {
		bg = contrast.Blend(layers[i], bg)
	}
	return bg, nil
}

// foreground resolves el's text colour over bg. Missing colour means black.
func foreground(el page.ElementState, bg contrast.Color) (contrast.Color, error) {
	v := el.CSS("color")
	if v == "" {
		return contrast.Black, nil
	}
	c, err := contrast.Parse(v)
	if err != nil {
		return contrast.Color{}, err
	}
	return contrast.Blend(c, bg), nil
}

func pointsFor(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

func priorityFor(ok bool, failing audit.Priority) audit.Priority {
	if ok {
		return audit.PriorityNone
	}
	return failing
}
