// Package model defines the core domain models used throughout the application.
package model

import "fmt"

// Category is a closed set of top-level document categories. The values are
// the literal folder-prefix strings the vision model is instructed to emit.
type Category string

// Category constants.
const (
	CategoryMoneyTax     Category = "10_マネー・税務"
	CategoryProjectAsset Category = "20_プロジェクト・資産"
	CategoryLifeAdmin    Category = "30_ライフ・行政"
	CategoryChildrenEdu  Category = "40_子供・教育"
	CategoryPhotoOther   Category = "50_写真・その他"
	CategoryLibrary      Category = "90_ライブラリ"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryMoneyTax,
	CategoryProjectAsset,
	CategoryLifeAdmin,
	CategoryChildrenEdu,
	CategoryPhotoOther,
	CategoryLibrary,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// SubCategory is a closed set of sub-categories, meaningful only when the
// category is CategoryChildrenEdu.
type SubCategory string

// SubCategory constants.
const (
	SubCategoryNewsletter SubCategory = "01_お便り・スケジュール"
	SubCategorySubmission SubCategory = "02_提出・手続き・重要"
	SubCategoryRecords    SubCategory = "03_記録・作品・成績"
)

// SubCategories lists every valid sub-category in display order.
var SubCategories = []SubCategory{
	SubCategoryNewsletter,
	SubCategorySubmission,
	SubCategoryRecords,
}

// Valid reports whether s is one of the known sub-categories.
func (s SubCategory) Valid() bool {
	for _, known := range SubCategories {
		if s == known {
			return true
		}
	}
	return false
}

// ClassificationResult is the validated output of one vision-model
// classification. It is transient: produced per document and never persisted.
type ClassificationResult struct {
	Category         Category    `json:"category"`
	SubCategory      SubCategory `json:"sub_category"`
	ChildName        string      `json:"child_name"`
	TargetGradeClass string      `json:"target_grade_class"`
	Date             string      `json:"date"`
	Summary          string      `json:"summary"`
	IsPhoto          bool        `json:"is_photo"`
	ConfidenceScore  float64     `json:"confidence_score"`
}

// Validate checks the invariants the rest of the pipeline relies on. It runs
// at the router's parse boundary so nothing downstream re-checks category
// membership or the confidence range.
func (r *ClassificationResult) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if r.SubCategory != "" && !r.SubCategory.Valid() {
		return fmt.Errorf("unknown sub-category %q", r.SubCategory)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %.2f out of range [0,1]", r.ConfidenceScore)
	}
	if r.Date != "" && !validDate(r.Date) {
		return fmt.Errorf("date %q is not YYYYMMDD", r.Date)
	}
	return nil
}

func validDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
