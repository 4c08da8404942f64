package capture

import (
	"fmt"

	"github.com/raysh454/glimpse/internal/page"
)

// rawElement is what snapshotScript reports for each element.
type rawElement struct {
	Tag       string            `json:"tag"`
	Locator   string            `json:"locator"`
	OwnedText string            `json:"ownedText"`
	AllText   string            `json:"allText"`
	Box       page.Box          `json:"box"`
	CSS       map[string]string `json:"css"`
	Attrs     map[string]string `json:"attrs"`
}

// snapshotScript walks the DOM in document order and reports each element's
// locator, text, geometry and the computed styles the audit rules read.
const snapshotScript = `(() => {
  const props = ["color", "background-color", "font-family", "font-size", "font-weight",
    "font-style", "display", "visibility", "border-width", "border-style", "border-color"];
  const skip = new Set(["HEAD", "SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE"]);
  const squash = s => (s || "").replace(/\s+/g, " ").trim();
  const out = [];
  const walk = (el, prefix) => {
    if (skip.has(el.tagName)) return;
    const tag = el.tagName.toLowerCase();
    let idx = 1;
    for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
      if (s.tagName === el.tagName) idx++;
    }
    const locator = prefix + "/" + tag + "[" + idx + "]";
    const cs = getComputedStyle(el);
    const css = {};
    for (const p of props) css[p] = cs.getPropertyValue(p);
    const attrs = {};
    for (const a of el.attributes) attrs[a.name] = a.value;
    let owned = [];
    for (const n of el.childNodes) {
      if (n.nodeType === Node.TEXT_NODE && squash(n.textContent)) owned.push(squash(n.textContent));
    }
    const r = el.getBoundingClientRect();
    out.push({
      tag, locator,
      ownedText: owned.join(" "),
      allText: squash(el.innerText || el.textContent),
      box: {x: r.x, y: r.y, w: r.width, h: r.height},
      css, attrs,
    });
    for (const child of el.children) walk(child, locator);
  };
  walk(document.documentElement, "");
  return out;
})()`

// buildPage validates the browser's report. Owned text missing from the
// rendered text (hidden children, CSS transforms) falls back to the text
// content so the element invariant holds.
func buildPage(url, title string, raw []rawElement) (*page.PageState, error) {
	els := make([]page.ElementState, 0, len(raw))
	for i, r := range raw {
		spec := page.ElementSpec{
			Tag:        r.Tag,
			OwnedText:  r.OwnedText,
			AllText:    r.AllText,
			Box:        r.Box,
			CSS:        r.CSS,
			Attributes: r.Attrs,
			Locator:    r.Locator,
		}
		el, err := page.NewElement(spec)
		if err != nil {
			spec.AllText = joinText(r.AllText, r.OwnedText)
			if el, err = page.NewElement(spec); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		els = append(els, el)
	}
	return page.NewPage(url, title, page.IsSecure(url), els)
}

func joinText(all, owned string) string {
	if all == "" {
		return owned
	}
	return all + " " + owned
}
