package score

import (
	"sort"

	"github.com/raysh454/glimpse/internal/audit"
)

// SubcategoryDelta is the change of one subcategory between two runs.
type SubcategoryDelta struct {
	Subcategory audit.Subcategory `json:"subcategory"`
	Base        float64           `json:"base"`
	Head        float64           `json:"head"`
	Delta       float64           `json:"delta"`
}

// Delta compares two roll-ups of the same site.
type Delta struct {
	BaseOverall float64            `json:"base_overall"`
	HeadOverall float64            `json:"head_overall"`
	Delta       float64            `json:"delta"`
	Changes     []SubcategoryDelta `json:"changes"`
}

// Diff lists every subcategory present in either summary, largest change
// first. A subcategory missing on one side counts as 0 there.
func Diff(base, head Summary) Delta {
	d := Delta{
		BaseOverall: base.Overall.Percent,
		HeadOverall: head.Overall.Percent,
		Delta:       head.Overall.Percent - base.Overall.Percent,
		Changes:     []SubcategoryDelta{},
	}
	seen := make(map[audit.Subcategory]struct{})
	for k := range base.BySubcategory {
		seen[k] = struct{}{}
	}
	for k := range head.BySubcategory {
		seen[k] = struct{}{}
	}
	for k := range seen {
		b, h := base.BySubcategory[k].Percent, head.BySubcategory[k].Percent
		d.Changes = append(d.Changes, SubcategoryDelta{Subcategory: k, Base: b, Head: h, Delta: h - b})
	}
	sort.Slice(d.Changes, func(i, j int) bool {
		ai, aj := abs(d.Changes[i].Delta), abs(d.Changes[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return d.Changes[i].Subcategory < d.Changes[j].Subcategory
	})
	return d
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
