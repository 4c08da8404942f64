package page

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Inherited CSS properties copied from parent to child when building from
// static HTML (there is no layout engine here, so only inline styles count).
var inheritedCSS = []string{"color", "font-family", "font-size", "font-weight", "font-style"}

var skippedTags = map[string]struct{}{
	"head": {}, "script": {}, "style": {}, "noscript": {}, "template": {},
}

// FromHTML builds a PageState from static HTML. Inline style declarations
// become the resolved CSS map, inherited properties flow down the tree, and
// locators are XPath-like ("/html[1]/body[1]/p[2]").
func FromHTML(rawURL string, body []byte) (*PageState, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("page: parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	root := doc.Find("html").First()
	if root.Length() == 0 {
		return NewPage(rawURL, title, IsSecure(rawURL), nil)
	}

	b := &htmlBuilder{}
	if err := b.walk(root, "", nil); err != nil {
		return nil, err
	}
	return NewPage(rawURL, title, IsSecure(rawURL), b.elements)
}

type htmlBuilder struct {
	elements []ElementState
}

func (b *htmlBuilder) walk(sel *goquery.Selection, locator string, inherited map[string]string) error {
	node := sel.Get(0)
	tag := goquery.NodeName(sel)
	locator = locator + "/" + tag + fmt.Sprintf("[%d]", siblingIndex(node))

	css := make(map[string]string, len(inherited))
	for k, v := range inherited {
		css[k] = v
	}
	if style, ok := sel.Attr("style"); ok {
		for k, v := range ParseStyle(style) {
			css[k] = v
		}
	}

	attrs := make(map[string]string, len(node.Attr))
	for _, a := range node.Attr {
		attrs[a.Key] = a.Val
	}

	owned := ownedText(node)
	all := normalizeSpace(sel.Text())
	if !strings.Contains(all, owned) {
		owned = longestTextChild(node)
	}

	el, err := NewElement(ElementSpec{
		Tag:        tag,
		OwnedText:  owned,
		AllText:    all,
		CSS:        css,
		Attributes: attrs,
		Locator:    locator,
	})
	if err != nil {
		return err
	}
	b.elements = append(b.elements, el)

	next := make(map[string]string, len(inheritedCSS))
	for _, p := range inheritedCSS {
		if v, ok := css[p]; ok {
			next[p] = v
		}
	}

	var walkErr error
	sel.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if _, skip := skippedTags[goquery.NodeName(child)]; skip {
			return true
		}
		if walkErr = b.walk(child, locator, next); walkErr != nil {
			return false
		}
		return true
	})
	return walkErr
}

func siblingIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			idx++
		}
	}
	return idx
}

func ownedText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := normalizeSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func longestTextChild(n *html.Node) string {
	best := ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := normalizeSpace(c.Data); len(t) > len(best) {
				best = t
			}
		}
	}
	return best
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseStyle parses an inline style declaration list into lower-cased
// property names. Declarations without a colon are dropped and
// "!important" is stripped.
func ParseStyle(style string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	// "background" shorthand commonly carries just a colour.
	if bg, ok := out["background"]; ok {
		if _, set := out["background-color"]; !set && !strings.Contains(bg, "url(") && !strings.Contains(bg, "gradient") {
			out["background-color"] = bg
		}
	}
	return out
}
