// Package score rolls audit points up into subcategory, category and overall
// percentages, and tracks the progress of an audit job.
package score

import (
	"math"
	"sort"

	"github.com/raysh454/glimpse/internal/audit"
)

// Percent is points/maxPoints*100 clamped to [0,100]. It reports false when
// maxPoints is zero so callers can leave the value out.
func Percent(points, maxPoints int) (float64, bool) {
	if maxPoints <= 0 {
		return 0, false
	}
	return clamp(float64(points) / float64(maxPoints) * 100), true
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}

// Bucket is the accumulated score of one group of audits.
type Bucket struct {
	Points    int     `json:"points"`
	MaxPoints int     `json:"max_points"`
	Audits    int     `json:"audits"`
	Percent   float64 `json:"percent"`
}

func (b *Bucket) add(points, maxPoints int) {
	b.Points += points
	b.MaxPoints += maxPoints
	b.Audits++
	b.Percent, _ = Percent(b.Points, b.MaxPoints)
}

// Summary is the roll-up of a set of audits. Audits without points are
// skipped and appear in no bucket.
type Summary struct {
	BySubcategory map[audit.Subcategory]Bucket `json:"by_subcategory"`
	ByCategory    map[audit.Category]Bucket    `json:"by_category"`
	Overall       Bucket                       `json:"overall"`
	Skipped       int                          `json:"skipped"`
}

// RollUp groups audits by subcategory and weights each by its max points, so
// a subcategory's percentage is the sum of its points over the sum of its
// maxima. Categories and the overall score are weighted the same way.
func RollUp(audits []*audit.Audit) Summary {
	s := Summary{
		BySubcategory: make(map[audit.Subcategory]Bucket),
		ByCategory:    make(map[audit.Category]Bucket),
	}
	for _, a := range audits {
		if a == nil || a.MaxPoints() <= 0 {
			s.Skipped++
			continue
		}
		sub := s.BySubcategory[a.Subcategory()]
		sub.add(a.Points(), a.MaxPoints())
		s.BySubcategory[a.Subcategory()] = sub

		cat := s.ByCategory[a.Category()]
		cat.add(a.Points(), a.MaxPoints())
		s.ByCategory[a.Category()] = cat

		s.Overall.add(a.Points(), a.MaxPoints())
	}
	return s
}

// Subcategories returns the summary's subcategories in a stable order.
func (s Summary) Subcategories() []audit.Subcategory {
	out := make([]audit.Subcategory, 0, len(s.BySubcategory))
	for k := range s.BySubcategory {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
