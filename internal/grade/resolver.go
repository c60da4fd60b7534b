// Package grade implements the child-identity and school-grade resolver:
// fiscal-year arithmetic, alias normalization, grade-code arithmetic,
// free-text grade/class extraction, and shared-group folder resolution.
// Given its static tables the resolver is pure; it makes no external calls.
package grade

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/paperflow/internal/config"
)

// GradeUnknown is the sentinel grade code for identities without a
// base-grade entry.
const GradeUnknown = -99

// Resolver answers grade and identity questions against immutable tables.
// Children and shared groups keep their configured order so repeated calls
// produce identical results.
type Resolver struct {
	baseGrades map[string]int
	preschool  map[int]config.PreschoolClass
	children   []config.Child
	classes    []config.PreschoolClass
	groups     []config.SharedGroup
	baseFY     int
	graduation int
}

// NewResolver builds a Resolver from the loaded grade settings.
func NewResolver(cfg config.GradeSettings) *Resolver {
	r := &Resolver{
		children:   cfg.Children,
		classes:    cfg.PreschoolClasses,
		groups:     cfg.SharedGroups,
		baseFY:     cfg.BaseFiscalYear,
		graduation: cfg.GraduationGrade,
		baseGrades: make(map[string]int, len(cfg.Children)),
		preschool:  make(map[int]config.PreschoolClass, len(cfg.PreschoolClasses)),
	}
	for _, c := range cfg.Children {
		r.baseGrades[c.Name] = c.BaseGrade
	}
	for _, pc := range cfg.PreschoolClasses {
		r.preschool[pc.Code] = pc
	}
	return r
}

// FiscalYear computes the April-start school year for an 8-digit YYYYMMDD
// date string. Missing or malformed dates fall back to now.
func (r *Resolver) FiscalYear(dateStr string, now time.Time) int {
	year, month := now.Year(), int(now.Month())

	if len(dateStr) == 8 {
		y, errY := strconv.Atoi(dateStr[:4])
		m, errM := strconv.Atoi(dateStr[4:6])
		// An out-of-range month means the whole date is untrustworthy,
		// so it falls back to now like any other malformed input.
		if errY == nil && errM == nil && m >= 1 && m <= 12 {
			year, month = y, m
		}
	}

	// January through March belong to the previous fiscal year.
	if month <= 3 {
		return year - 1
	}
	return year
}

// NormalizeIdentity maps a name to its canonical identity, or "" when the
// name matches no alias and no canonical name.
func (r *Resolver) NormalizeIdentity(name string) string {
	if name == "" {
		return ""
	}
	for _, c := range r.children {
		if name == c.Name {
			return c.Name
		}
		for _, alias := range c.Aliases {
			if name == alias {
				return c.Name
			}
		}
	}
	return ""
}

// GradeCode returns the grade code of a child in the given fiscal year, or
// GradeUnknown for identities without a base-grade entry.
func (r *Resolver) GradeCode(name string, fiscalYear int) int {
	canonical := r.NormalizeIdentity(name)
	base, ok := r.baseGrades[canonical]
	if !ok {
		return GradeUnknown
	}
	return base + (fiscalYear - r.baseFY)
}

// GradeLabel returns the display label and emoji for a grade code:
// a configured preschool class pair, 小1..小6, 中1..中3, 高1..高3, or
// empty strings for anything else.
func (r *Resolver) GradeLabel(code int) (string, string) {
	if pc, ok := r.preschool[code]; ok {
		return pc.Name, pc.Emoji
	}
	switch {
	case code >= 1 && code <= 6:
		return fmt.Sprintf("小%d", code), "🏫"
	case code >= 7 && code <= 9:
		return fmt.Sprintf("中%d", code-6), "🏫"
	case code >= 10 && code <= 12:
		return fmt.Sprintf("高%d", code-9), "🏫"
	}
	return "", ""
}

// IsGraduated reports whether a child has passed the graduation grade in
// the given fiscal year. Unknown identities are never graduated.
func (r *Resolver) IsGraduated(name string, fiscalYear int) bool {
	code := r.GradeCode(name, fiscalYear)
	if code == GradeUnknown {
		return false
	}
	return code > r.graduation
}

var (
	elementaryRe = regexp.MustCompile(`小学?([1-6])年?生?`)
	middleRe     = regexp.MustCompile(`中学?([1-3])年?生?`)
	highRe       = regexp.MustCompile(`高校?([1-3])年?生?`)
	// Generic "digit + separator + class letter" form, e.g. "2-B" or "3年1組".
	genericRe = regexp.MustCompile(`([1-9])\s?[-ー‐・/]?\s?([A-Za-z]|組|组)`)

	fullWidthDigits = strings.NewReplacer(
		"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
		"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	)
)

// IdentifyChildren extracts the canonical identities a free-text grade or
// class description refers to. Matching escalates through four tiers and
// stops at the first tier that yields anything:
//
//  1. alias substrings anywhere in the table
//  2. preschool class names (including the suffix-stripped form)
//  3. explicit 小/中/高 grade digits
//  4. a generic digit+class pattern, tried as elementary then middle then high
//
// No match returns an empty list.
func (r *Resolver) IdentifyChildren(text string, fiscalYear int) []string {
	if text == "" {
		return nil
	}

	if found := r.matchAliases(text); len(found) > 0 {
		return found
	}
	if found := r.matchPreschoolClass(text, fiscalYear); len(found) > 0 {
		return found
	}

	normalized := fullWidthDigits.Replace(text)

	if found := r.matchGradeDigits(normalized, fiscalYear); len(found) > 0 {
		return found
	}
	return r.matchGenericClass(normalized, fiscalYear)
}

func (r *Resolver) matchAliases(text string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, c := range r.children {
		for _, alias := range c.Aliases {
			if strings.Contains(text, alias) && !seen[c.Name] {
				seen[c.Name] = true
				found = append(found, c.Name)
				break
			}
		}
	}
	return found
}

func (r *Resolver) matchPreschoolClass(text string, fiscalYear int) []string {
	for _, pc := range r.classes {
		if strings.Contains(text, pc.Name) {
			return r.childrenAtGrade(pc.Code, fiscalYear)
		}
		// Also accept the bare class name with its 組 suffix dropped, as
		// long as the remainder is distinctive enough to match on.
		stripped := strings.TrimSuffix(pc.Name, "組")
		if stripped != pc.Name && len([]rune(stripped)) > 1 && strings.Contains(text, stripped) {
			return r.childrenAtGrade(pc.Code, fiscalYear)
		}
	}
	return nil
}

func (r *Resolver) matchGradeDigits(text string, fiscalYear int) []string {
	for _, school := range []struct {
		re     *regexp.Regexp
		offset int
	}{
		{elementaryRe, 0},
		{middleRe, 6},
		{highRe, 9},
	} {
		if m := school.re.FindStringSubmatch(text); m != nil {
			digit, _ := strconv.Atoi(m[1])
			return r.childrenAtGrade(digit+school.offset, fiscalYear)
		}
	}
	return nil
}

func (r *Resolver) matchGenericClass(text string, fiscalYear int) []string {
	m := genericRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	digit, _ := strconv.Atoi(m[1])

	if found := r.childrenAtGrade(digit, fiscalYear); len(found) > 0 {
		return found
	}
	if digit >= 1 && digit <= 3 {
		if found := r.childrenAtGrade(digit+6, fiscalYear); len(found) > 0 {
			return found
		}
		return r.childrenAtGrade(digit+9, fiscalYear)
	}
	return nil
}

func (r *Resolver) childrenAtGrade(code, fiscalYear int) []string {
	var matched []string
	for _, c := range r.children {
		if r.GradeCode(c.Name, fiscalYear) == code {
			matched = append(matched, c.Name)
		}
	}
	return matched
}

// ResolveFolder maps a set of canonical identities to the folder the
// documents should be filed in, plus a display label and emoji. A single
// child files under their own name; several children file under the first
// shared group whose member set equals the input set exactly. Input order
// does not affect the result.
func (r *Resolver) ResolveFolder(children []string) (string, string, string) {
	if len(children) == 0 {
		return "", "", ""
	}
	if len(children) == 1 {
		// Emoji is attached by the caller once the child's own grade label
		// is known.
		return children[0], children[0], ""
	}

	for _, g := range r.groups {
		if sameSet(children, g.Children) {
			return g.FolderName, g.Label, g.Emoji
		}
	}

	slog.Warn("no shared group matches child set, filing under first child",
		"children", children)
	return children[0], children[0], ""
}

func sameSet(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, name := range a {
		set[name] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, name := range b {
		if !set[name] {
			return false
		}
	}
	return true
}
