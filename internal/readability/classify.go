// Package readability maps a reading-ease score and a target audience onto a
// 0..4 point band.
package readability

import (
	"fmt"
	"strings"
)

// Education is the target audience's reading proficiency. The zero value
// means a general audience.
type Education string

const (
	EducationUnspecified Education = ""
	EducationHS          Education = "HS"
	EducationCollege     Education = "COLLEGE"
	EducationAdvanced    Education = "ADVANCED"
)

func ParseEducation(s string) (Education, error) {
	switch e := Education(strings.ToUpper(strings.TrimSpace(s))); e {
	case EducationUnspecified, EducationHS, EducationCollege, EducationAdvanced:
		return e, nil
	}
	return "", fmt.Errorf("readability: unknown education level %q", s)
}

// MaxPoints is the best band.
const MaxPoints = 4

// ShortTextWords is the word count below which text is treated as trivially
// readable.
const ShortTextWords = 10

type band struct {
	min    float64 // inclusive lower bound of the ease score
	label  string
	points [4]int // unspecified, HS, college, advanced
}

// bands is ordered from easiest to hardest; the last band catches
// everything below 30.
var bands = []band{
	{90, "very easy", [4]int{4, 4, 4, 4}},
	{80, "easy", [4]int{4, 4, 4, 4}},
	{70, "fairly easy", [4]int{3, 4, 4, 4}},
	{60, "standard", [4]int{2, 3, 4, 4}},
	{50, "fairly difficult", [4]int{1, 2, 3, 4}},
	{30, "difficult", [4]int{0, 1, 2, 3}},
	{-1e308, "very difficult", [4]int{0, 0, 1, 2}},
}

func audienceIndex(e Education) int {
	switch e {
	case EducationHS:
		return 1
	case EducationCollege:
		return 2
	case EducationAdvanced:
		return 3
	}
	return 0
}

func lookup(ease float64) band {
	for _, b := range bands {
		if ease >= b.min {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Classify returns the points earned by text with the given ease score for
// the audience.
func Classify(ease float64, edu Education) int {
	return lookup(ease).points[audienceIndex(edu)]
}

// Label names the ease band ("standard", "difficult", ...).
func Label(ease float64) string {
	return lookup(ease).label
}

// EaseScorer computes a 0..100 reading-ease score. Implementations backed by
// external services may fail; callers skip the text in that case.
type EaseScorer interface {
	Ease(text string) (float64, error)
}

// Result is the outcome of classifying one block of text.
type Result struct {
	Words  int
	Ease   float64
	Points int
	Label  string
	Short  bool
}

// ClassifyText scores text for edu. Text with fewer than ShortTextWords words
// gets MaxPoints without consulting the scorer.
func ClassifyText(text string, edu Education, scorer EaseScorer) (Result, error) {
	words := len(strings.Fields(text))
	if words < ShortTextWords {
		return Result{Words: words, Ease: 100, Points: MaxPoints, Label: "short", Short: true}, nil
	}
	if scorer == nil {
		scorer = Flesch{}
	}
	ease, err := scorer.Ease(text)
	if err != nil {
		return Result{}, fmt.Errorf("readability: score text: %w", err)
	}
	return Result{Words: words, Ease: ease, Points: Classify(ease, edu), Label: Label(ease)}, nil
}
