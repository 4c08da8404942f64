// Package contrast implements WCAG relative luminance, contrast ratios and a
// search for the nearest colour meeting a target ratio.
package contrast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an sRGB colour with alpha in [0,1].
type Color struct {
	R, G, B uint8
	A       float64
}

var (
	Black = Color{0, 0, 0, 1}
	White = Color{255, 255, 255, 1}
)

// ParseError reports a colour string that could not be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("contrast: cannot parse colour %q: %s", e.Input, e.Reason)
}

var named = map[string]Color{
	"transparent": {0, 0, 0, 0},
	"black":       Black,
	"white":       White,
	"red":         {255, 0, 0, 1},
	"green":       {0, 128, 0, 1},
	"blue":        {0, 0, 255, 1},
	"yellow":      {255, 255, 0, 1},
	"gray":        {128, 128, 128, 1},
	"grey":        {128, 128, 128, 1},
	"silver":      {192, 192, 192, 1},
	"orange":      {255, 165, 0, 1},
	"purple":      {128, 0, 128, 1},
	"navy":        {0, 0, 128, 1},
}

// Parse accepts #rgb, #rrggbb, #rrggbbaa, rgb(), rgba() and a few named
// colours.
func Parse(s string) (Color, error) {
	in := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Color{}, &ParseError{Input: in, Reason: "empty"}
	}
	if c, ok := named[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(in, s[1:])
	}
	if strings.HasPrefix(s, "rgb") {
		return parseFunc(in, s)
	}
	return Color{}, &ParseError{Input: in, Reason: "unknown format"}
}

func parseHex(in, h string) (Color, error) {
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6, 8:
	default:
		return Color{}, &ParseError{Input: in, Reason: "hex colour must have 3, 6 or 8 digits"}
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, &ParseError{Input: in, Reason: "invalid hex digit"}
	}
	if len(h) == 8 {
		return Color{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), float64(uint8(v)) / 255}, nil
	}
	return Color{uint8(v >> 16), uint8(v >> 8), uint8(v), 1}, nil
}

func parseFunc(in, s string) (Color, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Color{}, &ParseError{Input: in, Reason: "missing parentheses"}
	}
	fn := s[:open]
	if fn != "rgb" && fn != "rgba" {
		return Color{}, &ParseError{Input: in, Reason: "unknown function " + fn}
	}
	body := strings.NewReplacer("/", ",", " ", ",").Replace(s[open+1 : len(s)-1])
	var args []string
	for _, a := range strings.Split(body, ",") {
		if a != "" {
			args = append(args, a)
		}
	}
	if len(args) != 3 && len(args) != 4 {
		return Color{}, &ParseError{Input: in, Reason: "expected 3 or 4 components"}
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := channel(args[i])
		if err != nil {
			return Color{}, &ParseError{Input: in, Reason: err.Error()}
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(args) == 4 {
		a, err := alphaValue(args[3])
		if err != nil {
			return Color{}, &ParseError{Input: in, Reason: err.Error()}
		}
		alpha = a
	}
	return Color{ch[0], ch[1], ch[2], alpha}, nil
}

func channel(s string) (uint8, error) {
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("bad channel %q", s)
		}
		return clampByte(f * 255 / 100), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad channel %q", s)
	}
	return clampByte(f), nil
}

func alphaValue(s string) (float64, error) {
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("bad alpha %q", s)
	}
	if pct {
		f /= 100
	}
	return math.Max(0, math.Min(1, f)), nil
}

func clampByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, f))))
}

// Hex formats c as #rrggbb, ignoring alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string {
	if c.A >= 1 {
		return c.Hex()
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %.3g)", c.R, c.G, c.B, c.A)
}

func (c Color) Opaque() bool { return c.A >= 1 }

// Blend composites fg over an opaque bg.
func Blend(fg, bg Color) Color {
	if fg.A >= 1 {
		return fg
	}
	a := math.Max(0, fg.A)
	mix := func(f, b uint8) uint8 {
		return clampByte(float64(f)*a + float64(b)*(1-a))
	}
	return Color{mix(fg.R, bg.R), mix(fg.G, bg.G), mix(fg.B, bg.B), 1}
}
