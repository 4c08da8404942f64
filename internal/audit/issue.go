package audit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raysh454/glimpse/internal/fingerprint"
)

// IssueKind discriminates the Issue union.
type IssueKind string

const (
	IssueElement           IssueKind = "element"
	IssueColorContrast     IssueKind = "color_contrast"
	IssueReadingComplexity IssueKind = "reading_complexity"
	IssueColorPalette      IssueKind = "color_palette"
	IssueStockImage        IssueKind = "stock_image"
	IssueTypefaces         IssueKind = "typefaces"
	IssueGeneric           IssueKind = "generic"
)

type ElementDetail struct {
	ElementKey string `json:"element_key"`
	Locator    string `json:"locator"`
	Tag        string `json:"tag"`
}

type ColorContrastDetail struct {
	ElementKey string  `json:"element_key"`
	Locator    string  `json:"locator"`
	Foreground string  `json:"foreground"`
	Background string  `json:"background"`
	Ratio      float64 `json:"ratio"`
	Required   float64 `json:"required"`
	LargeText  bool    `json:"large_text"`
	// Suggested is empty when no compliant colour exists.
	Suggested string `json:"suggested,omitempty"`
	Shift     int    `json:"shift,omitempty"`
}

type ReadingComplexityDetail struct {
	ElementKey string  `json:"element_key"`
	Locator    string  `json:"locator"`
	Ease       float64 `json:"ease"`
	Words      int     `json:"words"`
	Band       string  `json:"band"`
	Audience   string  `json:"audience"`
}

type ColorPaletteDetail struct {
	ElementKey string  `json:"element_key"`
	Locator    string  `json:"locator"`
	Color      string  `json:"color"`
	Nearest    string  `json:"nearest"`
	Distance   float64 `json:"distance"`
}

type StockImageDetail struct {
	ElementKey string   `json:"element_key"`
	ImageURL   string   `json:"image_url"`
	Labels     []string `json:"labels,omitempty"`
	Violations []string `json:"violations"`
}

type TypefacesDetail struct {
	Families []string `json:"families"`
	Allowed  int      `json:"allowed"`
}

// Issue is one finding. Kind selects which detail pointer is set; generic
// issues carry none. Issues are values: once handed to New they are only
// changed through AttachTo on the audit's own copy.
type Issue struct {
	Kind           IssueKind `json:"kind"`
	Priority       Priority  `json:"priority"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation,omitempty"`
	WCAG           string    `json:"wcag,omitempty"`
	Labels         []string  `json:"labels,omitempty"`
	Points         int       `json:"points"`
	MaxPoints      int       `json:"max_points"`
	Elements       []string  `json:"elements,omitempty"`

	Element           *ElementDetail           `json:"element,omitempty"`
	ColorContrast     *ColorContrastDetail     `json:"color_contrast,omitempty"`
	ReadingComplexity *ReadingComplexityDetail `json:"reading_complexity,omitempty"`
	ColorPalette      *ColorPaletteDetail      `json:"color_palette,omitempty"`
	StockImage        *StockImageDetail        `json:"stock_image,omitempty"`
	Typefaces         *TypefacesDetail         `json:"typefaces,omitempty"`
}

// Validate checks the point bounds, the priority and that exactly the detail
// matching Kind is present.
func (i Issue) Validate() error {
	if i.MaxPoints < 0 || i.Points < 0 || i.Points > i.MaxPoints {
		return fmt.Errorf("%w: issue %q has points %d of %d", ErrInvalidInput, i.Title, i.Points, i.MaxPoints)
	}
	if !i.Priority.Valid() {
		return fmt.Errorf("%w: issue %q priority %q", ErrInvalidInput, i.Title, i.Priority)
	}
	set := map[IssueKind]bool{
		IssueElement:           i.Element != nil,
		IssueColorContrast:     i.ColorContrast != nil,
		IssueReadingComplexity: i.ReadingComplexity != nil,
		IssueColorPalette:      i.ColorPalette != nil,
		IssueStockImage:        i.StockImage != nil,
		IssueTypefaces:         i.Typefaces != nil,
	}
	switch i.Kind {
	case IssueElement, IssueColorContrast, IssueReadingComplexity, IssueColorPalette, IssueStockImage, IssueTypefaces:
		if !set[i.Kind] {
			return fmt.Errorf("%w: %s issue without its detail", ErrInvalidInput, i.Kind)
		}
	case IssueGeneric:
	default:
		return fmt.Errorf("%w: issue kind %q", ErrInvalidInput, i.Kind)
	}
	for k, present := range set {
		if present && k != i.Kind {
			return fmt.Errorf("%w: %s issue carries %s detail", ErrInvalidInput, i.Kind, k)
		}
	}
	return nil
}

// Score is round(points/maxPoints*100), 0 when the issue carries no points.
func (i Issue) Score() int {
	if i.MaxPoints == 0 {
		return 0
	}
	return int(math.Round(float64(i.Points) / float64(i.MaxPoints) * 100))
}

// Passed reports full marks.
func (i Issue) Passed() bool { return i.Points == i.MaxPoints }

// AttachTo records that the issue concerns the element with key. Repeated
// keys are ignored.
func (i *Issue) AttachTo(elementKey string) {
	for _, k := range i.Elements {
		if k == elementKey {
			return
		}
	}
	i.Elements = append(i.Elements, elementKey)
}

// Key fingerprints the issue's content, including its detail.
func (i Issue) Key() string {
	detail, _ := json.Marshal(struct {
		A *ElementDetail
		B *ColorContrastDetail
		C *ReadingComplexityDetail
		D *ColorPaletteDetail
		E *StockImageDetail
		F *TypefacesDetail
	}{i.Element, i.ColorContrast, i.ReadingComplexity, i.ColorPalette, i.StockImage, i.Typefaces})
	return fingerprint.Of(fingerprint.Issue,
		string(i.Kind),
		string(i.Priority),
		i.Title,
		i.Description,
		strings.Join(i.Labels, ","),
		strconv.Itoa(i.Points),
		strconv.Itoa(i.MaxPoints),
		strings.Join(i.Elements, ","),
		string(detail),
	)
}

func (i Issue) clone() Issue {
	out := i
	out.Labels = append([]string(nil), i.Labels...)
	out.Elements = append([]string(nil), i.Elements...)
	if i.StockImage != nil {
		d := *i.StockImage
		d.Labels = append([]string(nil), d.Labels...)
		d.Violations = append([]string(nil), d.Violations...)
		out.StockImage = &d
	}
	if i.Typefaces != nil {
		d := *i.Typefaces
		d.Families = append([]string(nil), d.Families...)
		out.Typefaces = &d
	}
	if i.Element != nil {
		d := *i.Element
		out.Element = &d
	}
	if i.ColorContrast != nil {
		d := *i.ColorContrast
		out.ColorContrast = &d
	}
	if i.ReadingComplexity != nil {
		d := *i.ReadingComplexity
		out.ReadingComplexity = &d
	}
	if i.ColorPalette != nil {
		d := *i.ColorPalette
		out.ColorPalette = &d
	}
	return out
}
