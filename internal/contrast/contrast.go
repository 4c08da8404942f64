package contrast

import (
	"errors"
	"math"
	"strings"
)

// ErrNoCompliantColor is returned when shifting a colour across its whole
// range never reaches the target ratio.
var ErrNoCompliantColor = errors.New("contrast: no compliant colour found")

// Level is a WCAG conformance level.
type Level string

const (
	LevelA   Level = "A"
	LevelAA  Level = "AA"
	LevelAAA Level = "AAA"
)

func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelA, LevelAA, LevelAAA:
		return l, true
	}
	return "", false
}

// NonTextMinimum is the ratio required for buttons, inputs and other UI
// components.
const NonTextMinimum = 3.0

// TextMinimum returns the ratio required for text at level. Level A sets no
// contrast requirement and reports false.
func TextMinimum(level Level, large bool) (float64, bool) {
	switch level {
	case LevelAA:
		if large {
			return 3, true
		}
		return 4.5, true
	case LevelAAA:
		if large {
			return 4.5, true
		}
		return 7, true
	}
	return 0, false
}

// IsLargeText reports WCAG large-scale text: 24px, or 18.66px when bold.
func IsLargeText(fontSizePx float64, bold bool) bool {
	return fontSizePx >= 24 || (bold && fontSizePx >= 18.66)
}

func linear(v uint8) float64 {
	c := float64(v) / 255
	if c <= 0.03928 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// Luminance is the WCAG relative luminance of an opaque colour.
func Luminance(c Color) float64 {
	return 0.2126*linear(c.R) + 0.7152*linear(c.G) + 0.0722*linear(c.B)
}

// Ratio is the contrast ratio between two opaque colours, in [1, 21].
func Ratio(a, b Color) float64 {
	la, lb := Luminance(a), Luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// Direction picks where FindCompliant moves the colour.
type Direction int

const (
	Auto Direction = iota
	TowardBlack
	TowardWhite
)

func (d Direction) String() string {
	switch d {
	case TowardBlack:
		return "darker"
	case TowardWhite:
		return "lighter"
	}
	return "auto"
}

// Suggestion is a compliant replacement colour. Shift is the per-channel
// distance moved from the original.
type Suggestion struct {
	Color     Color
	Shift     int
	Ratio     float64
	Direction Direction
}

// luminance at which white and black give the same ratio
const pivotLuminance = 0.17912878474779

// FindCompliant shifts original one unit per channel per step until its ratio
// against reference reaches target. Translucent inputs are blended first
// (original over reference, reference over white). Auto moves away from the
// reference's luminance and falls back to the other direction. The search is
// bounded by the channel range.
func FindCompliant(original, reference Color, target float64, dir Direction) (Suggestion, error) {
	reference = Blend(reference, White)
	original = Blend(original, reference)

	if r := Ratio(original, reference); r >= target {
		return Suggestion{Color: original, Ratio: r, Direction: dir}, nil
	}

	if dir != Auto {
		return search(original, reference, target, dir)
	}

	first := TowardWhite
	lo, lr := Luminance(original), Luminance(reference)
	if lo < lr || (lo == lr && lr > pivotLuminance) {
		first = TowardBlack
	}
	if s, err := search(original, reference, target, first); err == nil {
		return s, nil
	}
	second := TowardBlack
	if first == TowardBlack {
		second = TowardWhite
	}
	return search(original, reference, target, second)
}

func search(original, reference Color, target float64, dir Direction) (Suggestion, error) {
	for shift := 1; shift <= 255; shift++ {
		c := Color{
			R: move(original.R, shift, dir),
			G: move(original.G, shift, dir),
			B: move(original.B, shift, dir),
			A: 1,
		}
		if r := Ratio(c, reference); r >= target {
			return Suggestion{Color: c, Shift: shift, Ratio: r, Direction: dir}, nil
		}
		if saturated(c, dir) {
			break
		}
	}
	return Suggestion{}, ErrNoCompliantColor
}

func move(v uint8, shift int, dir Direction) uint8 {
	n := int(v)
	if dir == TowardBlack {
		n -= shift
	} else {
		n += shift
	}
	return uint8(max(0, min(255, n)))
}

func saturated(c Color, dir Direction) bool {
	if dir == TowardBlack {
		return c == Color{0, 0, 0, 1}
	}
	return c == Color{255, 255, 255, 1}
}
