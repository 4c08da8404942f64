// Package page holds the immutable snapshots glimpse audits: a rendered page
// and the elements captured from it.
package page

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/raysh454/glimpse/internal/fingerprint"
)

var (
	ErrInvalidElement = errors.New("page: invalid element")
	ErrInvalidPage    = errors.New("page: invalid page")
)

// Box is an element's bounding box in CSS pixels.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ElementSpec is the mutable input used to build an ElementState.
type ElementSpec struct {
	Tag        string            `json:"tag"`
	OwnedText  string            `json:"owned_text,omitempty"`
	AllText    string            `json:"all_text,omitempty"`
	Box        Box               `json:"box"`
	CSS        map[string]string `json:"css,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Locator    string            `json:"locator"`
	Key        string            `json:"key,omitempty"`
}

// ElementState is one captured DOM element. It cannot be modified after
// construction; map accessors hand out copies.
type ElementState struct {
	tag       string
	ownedText string
	allText   string
	box       Box
	css       map[string]string
	attrs     map[string]string
	locator   string
	key       string
}

// NewElement validates spec and snapshots it. AllText must contain OwnedText.
// An empty Key is derived from tag, locator and owned text.
func NewElement(spec ElementSpec) (ElementState, error) {
	tag := strings.ToLower(strings.TrimSpace(spec.Tag))
	if tag == "" {
		return ElementState{}, fmt.Errorf("%w: empty tag", ErrInvalidElement)
	}
	if spec.Locator == "" {
		return ElementState{}, fmt.Errorf("%w: %s has no locator", ErrInvalidElement, tag)
	}
	allText := spec.AllText
	if allText == "" {
		allText = spec.OwnedText
	}
	if !strings.Contains(allText, spec.OwnedText) {
		return ElementState{}, fmt.Errorf("%w: all text of %s does not contain its owned text", ErrInvalidElement, spec.Locator)
	}

	el := ElementState{
		tag:       tag,
		ownedText: spec.OwnedText,
		allText:   allText,
		box:       spec.Box,
		css:       lowerKeys(spec.CSS),
		attrs:     lowerKeys(spec.Attributes),
		locator:   spec.Locator,
		key:       spec.Key,
	}
	if el.key == "" {
		el.key = fingerprint.Of(fingerprint.Element, tag, spec.Locator, spec.OwnedText)
	}
	return el, nil
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func (e ElementState) Tag() string       { return e.tag }
func (e ElementState) OwnedText() string { return e.ownedText }
func (e ElementState) AllText() string   { return e.allText }
func (e ElementState) Box() Box          { return e.box }
func (e ElementState) Locator() string   { return e.locator }
func (e ElementState) Key() string       { return e.key }

// CSS returns a resolved CSS property, "" when absent.
func (e ElementState) CSS(name string) string { return e.css[strings.ToLower(name)] }

// Attr returns an attribute value and whether it was present.
func (e ElementState) Attr(name string) (string, bool) {
	v, ok := e.attrs[strings.ToLower(name)]
	return v, ok
}

// CSSMap returns a copy of the resolved CSS properties.
func (e ElementState) CSSMap() map[string]string { return maps.Clone(e.css) }

// AttrMap returns a copy of the attributes.
func (e ElementState) AttrMap() map[string]string { return maps.Clone(e.attrs) }

// FontSizePx parses the font-size property. Returns 0 when unknown.
func (e ElementState) FontSizePx() float64 {
	v := strings.TrimSpace(e.CSS("font-size"))
	switch {
	case strings.HasSuffix(v, "px"):
		f, _ := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
		return f
	case strings.HasSuffix(v, "pt"):
		f, _ := strconv.ParseFloat(strings.TrimSuffix(v, "pt"), 64)
		return f * 4 / 3
	}
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

// Bold reports a font-weight of 600 or more.
func (e ElementState) Bold() bool {
	w := e.CSS("font-weight")
	if w == "bold" || w == "bolder" {
		return true
	}
	n, err := strconv.Atoi(w)
	return err == nil && n >= 600
}

// Spec returns a deep copy of the element's fields.
func (e ElementState) Spec() ElementSpec {
	return ElementSpec{
		Tag:        e.tag,
		OwnedText:  e.ownedText,
		AllText:    e.allText,
		Box:        e.box,
		CSS:        e.CSSMap(),
		Attributes: e.AttrMap(),
		Locator:    e.locator,
		Key:        e.key,
	}
}

func (e ElementState) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Spec())
}

func (e *ElementState) UnmarshalJSON(b []byte) error {
	var spec ElementSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return err
	}
	el, err := NewElement(spec)
	if err != nil {
		return err
	}
	*e = el
	return nil
}

// PageState is a captured page. Immutable once built.
type PageState struct {
	url       string
	title     string
	secure    bool
	elements  []ElementState
	byLocator map[string]int
	key       string
}

// NewPage snapshots a page. Element locators must be unique.
func NewPage(rawURL, title string, secure bool, elements []ElementState) (*PageState, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPage, ErrEmptyURL)
	}
	p := &PageState{
		url:       rawURL,
		title:     title,
		secure:    secure,
		elements:  append([]ElementState(nil), elements...),
		byLocator: make(map[string]int, len(elements)),
	}
	parts := make([]string, 0, len(elements)+1)
	canon, err := Canonicalize(rawURL, DefaultCanonicalizeOptions)
	if err != nil {
		canon = rawURL
	}
	parts = append(parts, canon)
	for i, el := range p.elements {
		if el.key == "" {
			return nil, fmt.Errorf("%w: element %d was not built with NewElement", ErrInvalidPage, i)
		}
		if _, dup := p.byLocator[el.locator]; dup {
			return nil, fmt.Errorf("%w: duplicate locator %s", ErrInvalidPage, el.locator)
		}
		p.byLocator[el.locator] = i
		parts = append(parts, el.key)
	}
	p.key = fingerprint.Of(fingerprint.Page, parts...)
	return p, nil
}

func (p *PageState) URL() string   { return p.url }
func (p *PageState) Title() string { return p.title }
func (p *PageState) Secure() bool  { return p.secure }
func (p *PageState) Key() string   { return p.key }

// Elements returns the elements in document order.
func (p *PageState) Elements() []ElementState {
	return append([]ElementState(nil), p.elements...)
}

// ElementsByTag returns elements whose tag is one of tags.
func (p *PageState) ElementsByTag(tags ...string) []ElementState {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[strings.ToLower(t)] = struct{}{}
	}
	var out []ElementState
	for _, el := range p.elements {
		if _, ok := want[el.tag]; ok {
			out = append(out, el)
		}
	}
	return out
}

// Element looks an element up by locator.
func (p *PageState) Element(locator string) (ElementState, bool) {
	i, ok := p.byLocator[locator]
	if !ok {
		return ElementState{}, false
	}
	return p.elements[i], true
}

// Parent returns the nearest captured ancestor of el, found by trimming
// locator segments ("/html[1]/body[1]/p[2]" -> "/html[1]/body[1]").
func (p *PageState) Parent(el ElementState) (ElementState, bool) {
	loc := el.locator
	for {
		i := strings.LastIndex(loc, "/")
		if i <= 0 {
			return ElementState{}, false
		}
		loc = loc[:i]
		if parent, ok := p.Element(loc); ok {
			return parent, true
		}
	}
}

// Ancestors walks from el's parent up to the root.
func (p *PageState) Ancestors(el ElementState) []ElementState {
	var out []ElementState
	cur := el
	for {
		parent, ok := p.Parent(cur)
		if !ok {
			return out
		}
		out = append(out, parent)
		cur = parent
	}
}

type pageWire struct {
	URL      string         `json:"url"`
	Title    string         `json:"title,omitempty"`
	Secure   bool           `json:"secure"`
	Elements []ElementState `json:"elements"`
	Key      string         `json:"key,omitempty"`
}

func (p *PageState) MarshalJSON() ([]byte, error) {
	return json.Marshal(pageWire{URL: p.url, Title: p.title, Secure: p.secure, Elements: p.elements, Key: p.key})
}

func (p *PageState) UnmarshalJSON(b []byte) error {
	var w pageWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	built, err := NewPage(w.URL, w.Title, w.Secure, w.Elements)
	if err != nil {
		return err
	}
	*p = *built
	return nil
}

// Domain groups the pages captured for one site.
type Domain struct {
	URL   string
	Pages []*PageState
}

// NewDomain rejects empty URLs and nil pages.
func NewDomain(rawURL string, pages []*PageState) (*Domain, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: domain url", ErrInvalidPage)
	}
	for i, p := range pages {
		if p == nil {
			return nil, fmt.Errorf("%w: domain page %d is nil", ErrInvalidPage, i)
		}
	}
	return &Domain{URL: rawURL, Pages: append([]*PageState(nil), pages...)}, nil
}
