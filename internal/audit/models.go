// Package audit defines the rule contract, the issue and audit value types
// rules produce, and the executor that runs rules over a page or domain.
package audit

import "fmt"

type Category string

const (
	CategoryContent                 Category = "content"
	CategoryInformationArchitecture Category = "information_architecture"
	CategoryAesthetics              Category = "aesthetics"
	CategoryAccessibility           Category = "accessibility"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryContent, CategoryInformationArchitecture, CategoryAesthetics, CategoryAccessibility,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryContent, CategoryInformationArchitecture, CategoryAesthetics, CategoryAccessibility:
		return true
	}
	return false
}

type Subcategory string

const (
	SubcategoryWrittenContent  Subcategory = "written_content"
	SubcategoryImagery         Subcategory = "imagery"
	SubcategorySEO             Subcategory = "seo"
	SubcategoryNavigation      Subcategory = "navigation"
	SubcategorySecurity        Subcategory = "security"
	SubcategoryLinks           Subcategory = "links"
	SubcategoryColorManagement Subcategory = "color_management"
	SubcategoryTypography      Subcategory = "typography"
)

func (s Subcategory) Valid() bool {
	switch s {
	case SubcategoryWrittenContent, SubcategoryImagery, SubcategorySEO, SubcategoryNavigation,
		SubcategorySecurity, SubcategoryLinks, SubcategoryColorManagement, SubcategoryTypography:
		return true
	}
	return false
}

// Name identifies a rule.
type Name string

const (
	NameTextContrast      Name = "text_background_contrast"
	NameNonTextContrast   Name = "non_text_background_contrast"
	NameReadingComplexity Name = "reading_complexity"
	NameAltText           Name = "alt_text"
	NameLinks             Name = "links"
	NameTitles            Name = "titles"
	NameHeaders           Name = "headers"
	NameTypefaces         Name = "typefaces"
	NameColorPalette      Name = "color_palette"
	NameImagePolicy       Name = "image_policy"
	NameEncrypted         Name = "encrypted"
	NameDomainEncryption  Name = "domain_encryption"
)

func (n Name) Valid() bool {
	switch n {
	case NameTextContrast, NameNonTextContrast, NameReadingComplexity, NameAltText, NameLinks,
		NameTitles, NameHeaders, NameTypefaces, NameColorPalette, NameImagePolicy, NameEncrypted,
		NameDomainEncryption:
		return true
	}
	return false
}

type Level string

const (
	LevelPage   Level = "page"
	LevelDomain Level = "domain"
)

func (l Level) Valid() bool { return l == LevelPage || l == LevelDomain }

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return true
	}
	return false
}

// Meta is the fixed identity of a rule and of every audit it produces.
type Meta struct {
	Category    Category    `json:"category"`
	Subcategory Subcategory `json:"subcategory"`
	Name        Name        `json:"name"`
	Level       Level       `json:"level"`
}

func (m Meta) Validate() error {
	switch {
	case !m.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrInvalidInput, m.Category)
	case !m.Subcategory.Valid():
		return fmt.Errorf("%w: subcategory %q", ErrInvalidInput, m.Subcategory)
	case !m.Name.Valid():
		return fmt.Errorf("%w: name %q", ErrInvalidInput, m.Name)
	case !m.Level.Valid():
		return fmt.Errorf("%w: level %q", ErrInvalidInput, m.Level)
	}
	return nil
}
