package audit

import (
	"fmt"
	"strings"

	"github.com/raysh454/glimpse/internal/contrast"
	"github.com/raysh454/glimpse/internal/readability"
)

// ImageCharacteristic is a label an image classifier can report.
type ImageCharacteristic string

const (
	ImageStock        ImageCharacteristic = "stock"
	ImageAdult        ImageCharacteristic = "adult"
	ImageViolence     ImageCharacteristic = "violence"
	ImagePeople       ImageCharacteristic = "people"
	ImageText         ImageCharacteristic = "text"
	ImageIllustration ImageCharacteristic = "illustration"
)

// ImageClassification is what an image classifier reports for one image.
type ImageClassification struct {
	Characteristics []ImageCharacteristic `json:"characteristics"`
	Labels          []string              `json:"labels,omitempty"`
}

// DesignSystem is the per-customer configuration rules are parameterized by.
type DesignSystem struct {
	ComplianceLevel             contrast.Level        `json:"compliance_level" yaml:"compliance_level"`
	AllowedImageCharacteristics []ImageCharacteristic `json:"allowed_image_characteristics" yaml:"allowed_image_characteristics"`
	Audience                    readability.Education `json:"audience" yaml:"audience"`
	Palette                     []string              `json:"palette" yaml:"palette"`
	// MaxTypefaces is how many primary font families a page may use.
	MaxTypefaces int `json:"max_typefaces" yaml:"max_typefaces"`
	// PaletteTolerance is the largest CIE76 colour difference (delta E) still
	// counted as on-palette.
	PaletteTolerance float64 `json:"palette_tolerance" yaml:"palette_tolerance"`
}

// DefaultDesignSystem is AA compliance for a general audience with people,
// text and illustrations allowed in imagery.
func DefaultDesignSystem() DesignSystem {
	return DesignSystem{
		ComplianceLevel:             contrast.LevelAA,
		AllowedImageCharacteristics: []ImageCharacteristic{ImagePeople, ImageText, ImageIllustration},
		Audience:                    readability.EducationUnspecified,
		MaxTypefaces:                2,
		PaletteTolerance:            10,
	}
}

// Normalize fills zero fields from DefaultDesignSystem and spells the
// compliance level and audience the way the rules compare them. Values that
// do not parse are left alone for Validate to report.
func (d DesignSystem) Normalize() DesignSystem {
	def := DefaultDesignSystem()
	if d.ComplianceLevel == "" {
		d.ComplianceLevel = def.ComplianceLevel
	}
	if l, ok := contrast.ParseLevel(string(d.ComplianceLevel)); ok {
		d.ComplianceLevel = l
	}
	if e, err := readability.ParseEducation(string(d.Audience)); err == nil {
		d.Audience = e
	}
	if d.AllowedImageCharacteristics == nil {
		d.AllowedImageCharacteristics = def.AllowedImageCharacteristics
	}
	if d.MaxTypefaces <= 0 {
		d.MaxTypefaces = def.MaxTypefaces
	}
	if d.PaletteTolerance <= 0 {
		d.PaletteTolerance = def.PaletteTolerance
	}
	return d
}

func (d DesignSystem) Validate() error {
	if _, ok := contrast.ParseLevel(string(d.ComplianceLevel)); !ok {
		return fmt.Errorf("%w: compliance level %q", ErrInvalidInput, d.ComplianceLevel)
	}
	if _, err := readability.ParseEducation(string(d.Audience)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, c := range d.Palette {
		if _, err := contrast.Parse(c); err != nil {
			return fmt.Errorf("%w: palette: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// Allows reports whether images with characteristic c are acceptable.
func (d DesignSystem) Allows(c ImageCharacteristic) bool {
	for _, a := range d.AllowedImageCharacteristics {
		if strings.EqualFold(string(a), string(c)) {
			return true
		}
	}
	return false
}
