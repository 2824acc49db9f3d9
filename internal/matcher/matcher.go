// Package matcher implements the free-text heuristics used to gate interview
// progress: keyword categories, help and proceed phrase detection, low-effort
// detection and numeric literal extraction.
//
// All functions are pure and safe for concurrent use.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var typographic = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-", "−", "-",
	"\u00a0", " ",
)

// Normalize lower-cases input, folds typographic punctuation to ASCII and
// collapses runs of whitespace into single spaces.
func Normalize(input string) string {
	s := typographic.Replace(strings.ToLower(input))
	return strings.Join(strings.Fields(s), " ")
}

// Keyword is a compiled, case-insensitive phrase matched on word boundaries.
//
// Phrase syntax: spaces match any whitespace run, a hyphen matches a hyphen,
// a space or nothing ("break-even" matches "breakeven"), and a trailing "*"
// turns the phrase into a prefix ("profit*" matches "profitability").
// Phrases ending in a letter also accept a plural "s" or "es".
type Keyword struct {
	Phrase string
	re     *regexp.Regexp
}

// Compile builds a Keyword from a phrase.
func Compile(phrase string) (Keyword, error) {
	p := Normalize(phrase)
	if p == "" {
		return Keyword{}, fmt.Errorf("empty keyword")
	}
	prefix := strings.HasSuffix(p, "*")
	p = strings.TrimSuffix(p, "*")

	var sb strings.Builder
	sb.WriteString(`(?i)(?:^|[^\p{L}\p{N}])`)
	for i, word := range strings.Split(p, " ") {
		if i > 0 {
			sb.WriteString(`\s+`)
		}
		parts := strings.Split(word, "-")
		for j, part := range parts {
			if j > 0 {
				sb.WriteString(`[-\s]?`)
			}
			sb.WriteString(regexp.QuoteMeta(part))
		}
	}
	if !prefix {
		last, _ := utf8.DecodeLastRuneInString(p)
		if isLetter(last) {
			sb.WriteString(`(?:e?s)?`)
		}
		sb.WriteString(`(?:$|[^\p{L}\p{N}])`)
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return Keyword{}, fmt.Errorf("compile keyword %q: %w", phrase, err)
	}
	return Keyword{Phrase: phrase, re: re}, nil
}

// MustCompile is like Compile but panics on error. It is meant for package-level tables.
func MustCompile(phrases ...string) []Keyword {
	out := make([]Keyword, 0, len(phrases))
	for _, p := range phrases {
		k, err := Compile(p)
		if err != nil {
			panic(err)
		}
		out = append(out, k)
	}
	return out
}

// Match reports whether the keyword occurs in input.
func (k Keyword) Match(input string) bool {
	if k.re == nil {
		return false
	}
	return k.re.MatchString(Normalize(input))
}

// AnyMatch reports whether any keyword occurs in input.
func AnyMatch(input string, keywords []Keyword) bool {
	normalized := Normalize(input)
	for _, k := range keywords {
		if k.re != nil && k.re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Category groups the keywords that unlock one piece of information.
type Category struct {
	Name     string
	Keywords []Keyword
}

// Result is the outcome of a category match.
type Result struct {
	Matched  bool
	Category string
}

// Matcher tests input against categories in priority order.
type Matcher struct {
	categories []Category
}

// New creates a Matcher. Categories are tested in the given order.
func New(categories ...Category) *Matcher {
	return &Matcher{categories: categories}
}

// Match returns the first category (in priority order) with a keyword in input.
func (m *Matcher) Match(input string) Result {
	if m == nil {
		return Result{}
	}
	for _, c := range m.categories {
		if AnyMatch(input, c.Keywords) {
			return Result{Matched: true, Category: c.Name}
		}
	}
	return Result{}
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}
