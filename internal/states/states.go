// Package states holds the closed set of Nigerian state names that appear in
// situation-report tables and the normalization rules applied to them.
package states

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Canonical lists the 37 state names (36 states plus the FCT).
var Canonical = []string{
	"Abia", "Adamawa", "Akwa Ibom", "Anambra", "Bauchi", "Bayelsa", "Benue",
	"Borno", "Cross River", "Delta", "Ebonyi", "Edo", "Ekiti", "Enugu", "FCT",
	"Gombe", "Imo", "Jigawa", "Kaduna", "Kano", "Katsina", "Kebbi", "Kogi",
	"Kwara", "Lagos", "Nasarawa", "Niger", "Ogun", "Ondo", "Osun", "Oyo",
	"Plateau", "Rivers", "Sokoto", "Taraba", "Yobe", "Zamfara",
}

// Special names that are kept verbatim.
var Special = []string{"Total", "Cameroon"}

// manual corrections for misspellings seen in published tables.
var manual = map[string]string{
	"plateu": "Plateau",
	"fct":    "FCT",
}

// MinSimilarity is the Levenshtein similarity a misspelt name needs to be
// corrected to a canonical one.
const MinSimilarity = 0.8

var (
	spaceRe = regexp.MustCompile(`\s+`)
	byKey   = map[string]string{}
	titler  = cases.Title(language.English)
)

func init() {
	for _, name := range Canonical {
		byKey[strings.ToLower(name)] = name
	}
	for _, name := range Special {
		byKey[strings.ToLower(name)] = name
	}
}

// CompareKey is the form used when comparing two extractions: lower case with
// hyphens read as spaces. The canonical spelling is never replaced by it.
func CompareKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", " ")
}

func clean(name string) string {
	name = norm.NFKC.String(name)
	return spaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
}

// Canonicalize maps an extracted state name to its canonical spelling. The
// second return is false when no canonical or special name matched and the
// input was only title-cased.
func Canonicalize(name string) (string, bool) {
	name = clean(name)
	if name == "" {
		return "", false
	}

	key := strings.ToLower(name)
	if c, ok := byKey[key]; ok {
		return c, true
	}
	if c, ok := manual[key]; ok {
		return c, true
	}
	if c, ok := byKey[strings.ReplaceAll(key, "-", " ")]; ok {
		return c, true
	}

	best, bestScore := "", 0.0
	for _, c := range Canonical {
		score := levenshtein.Similarity(key, strings.ToLower(c), nil)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore >= MinSimilarity {
		return best, true
	}

	return titler.String(name), false
}

// IsCanonical reports whether name is exactly one of the canonical or special names.
func IsCanonical(name string) bool {
	c, ok := byKey[strings.ToLower(name)]
	return ok && c == name
}
