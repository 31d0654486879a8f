// Package geo loads administrative boundaries from shapefiles and matches
// area names across datasets that spell them differently.
package geo

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics strips combining marks so "Île" and "Ile" compare equal.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeAreaName standardizes an administrative area name for matching by:
//  1. Folding diacritics (Rhône -> Rhone)
//  2. Converting to uppercase
//  3. Replacing hyphens and apostrophes with spaces
//  4. Collapsing multiple spaces into single spaces
func NormalizeAreaName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(foldDiacritics, name); err == nil {
		name = folded
	}

	name = strings.ToUpper(name)
	name = strings.NewReplacer(
		"-", " ",
		"'", " ",
		"’", " ",
		".", "",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// NameIndex resolves normalized area names to area codes.
type NameIndex struct {
	byName map[string]string
}

// NewNameIndex builds an index from names to codes. Later entries win on
// name collisions; callers index one administrative level at a time.
func NewNameIndex() *NameIndex {
	return &NameIndex{byName: make(map[string]string)}
}

// Add registers a name for a code.
func (ix *NameIndex) Add(name, code string) {
	key := NormalizeAreaName(name)
	if key == "" {
		return
	}
	ix.byName[key] = code
}

// Match returns the area code for a name, if one is indexed.
func (ix *NameIndex) Match(name string) (string, bool) {
	code, ok := ix.byName[NormalizeAreaName(name)]
	return code, ok
}
