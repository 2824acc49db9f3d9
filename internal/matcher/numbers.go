package matcher

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTolerance is the relative tolerance used when comparing extracted numbers.
const DefaultTolerance = 0.005

var numberRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)*)(?:\s*(thousands|millions|billions|thousand|million|billion|percent|cents|cent|mio|mln|bln|mn|mm|bn|ct|k|m|b|%))?`)

var scales = map[string]float64{
	"k": 1e3, "thousand": 1e3, "thousands": 1e3,
	"m": 1e6, "mm": 1e6, "mn": 1e6, "mio": 1e6, "mln": 1e6, "million": 1e6, "millions": 1e6,
	"b": 1e9, "bn": 1e9, "bln": 1e9, "billion": 1e9, "billions": 1e9,
	"cent": 0.01, "cents": 0.01, "ct": 0.01,
	"%": 1, "percent": 1,
}

// Numbers extracts the numeric literals in input, applying thousands
// separators, decimal commas and scale words. "10 million", "10m", "€10M" and
// "10,000,000" all yield 1e7; "80 cents" yields 0.8.
func Numbers(input string) []float64 {
	s := Normalize(input)
	var out []float64
	for _, m := range numberRegex.FindAllStringSubmatchIndex(s, -1) {
		raw := s[m[2]:m[3]]
		if m[2] > 0 {
			// Digits glued to a word ("q3", "h2o") are identifiers, not quantities.
			prev, _ := utf8.DecodeLastRuneInString(s[:m[2]])
			if unicode.IsLetter(prev) {
				continue
			}
		}
		v, ok := parseNumber(raw)
		if !ok {
			continue
		}
		if m[4] >= 0 {
			suffix := s[m[4]:m[5]]
			next, _ := utf8.DecodeRuneInString(s[m[5]:])
			// "10 months" must not read as ten million.
			if suffix == "%" || !unicode.IsLetter(next) {
				v *= scales[suffix]
			}
		}
		out = append(out, v)
	}
	return out
}

func parseNumber(raw string) (float64, bool) {
	commas := strings.Count(raw, ",")
	dots := strings.Count(raw, ".")
	switch {
	case commas > 0 && dots > 0:
		// The right-most separator is the decimal one.
		if strings.LastIndex(raw, ",") > strings.LastIndex(raw, ".") {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case commas > 1:
		raw = strings.ReplaceAll(raw, ",", "")
	case dots > 1:
		raw = strings.ReplaceAll(raw, ".", "")
	case commas == 1:
		raw = resolveSingle(raw, ",")
	case dots == 1:
		raw = resolveSingle(raw, ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveSingle decides whether a lone separator groups thousands ("2,500")
// or marks decimals ("0,80", "1.5").
func resolveSingle(raw, sep string) string {
	whole, frac, _ := strings.Cut(raw, sep)
	if len(frac) == 3 && whole != "0" {
		return whole + frac
	}
	return whole + "." + frac
}

// NumberSet is a set of expected numeric answers.
type NumberSet struct {
	Values    []float64
	Tolerance float64
}

// Contains reports whether any number extracted from input equals an expected value.
func (ns NumberSet) Contains(input string) bool {
	if len(ns.Values) == 0 {
		return false
	}
	tol := ns.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	for _, got := range Numbers(input) {
		for _, want := range ns.Values {
			if approxEqual(got, want, tol) {
				return true
			}
		}
	}
	return false
}

func approxEqual(got, want, tol float64) bool {
	if want == 0 {
		return math.Abs(got) < 1e-9
	}
	return math.Abs(got-want) <= tol*math.Abs(want)
}
