// Package feedback reviews a finished interview transcript without a model.
// The review never affects the score.
package feedback

import (
	"github.com/pavelanni/casecoach/internal/matcher"
	"github.com/pavelanni/casecoach/internal/model"
)

// Report lists translation message IDs for what went well and what to work on.
type Report struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Empty reports whether the review found nothing to say.
func (r Report) Empty() bool {
	return len(r.Strengths) == 0 && len(r.Improvements) == 0
}

var (
	hypothesisKeywords = matcher.MustCompile(
		"hypothesis", "hypothesize", "i think", "i suspect", "i believe",
		"my guess", "likely", "probably", "my hunch",
	)
	assumptionKeywords = matcher.MustCompile(
		"assum*", "let's say", "suppose", "estimate*", "roughly", "approximately",
	)
	recommendationKeywords = matcher.MustCompile(
		"recommend*", "suggest*", "advise", "should", "go ahead", "my answer",
	)
	structureKeywords = matcher.MustCompile(
		"first", "second", "framework", "break down", "break it down",
		"bucket", "profit tree", "issue tree", "structure", "segment*",
	)
)

// Check is one dimension of the heuristic review.
type Check struct {
	Strength    string
	Improvement string
	// Passed reports whether the candidate's messages meet the check.
	Passed func(student []string) bool
}

// Checks are evaluated in order.
var Checks = []Check{
	{"FeedbackStructureGood", "FeedbackStructureMissing", anyKeyword(structureKeywords)},
	{"FeedbackHypothesisGood", "FeedbackHypothesisMissing", anyKeyword(hypothesisKeywords)},
	{"FeedbackAssumptionsGood", "FeedbackAssumptionsMissing", anyKeyword(assumptionKeywords)},
	{"FeedbackQuantifiedGood", "FeedbackQuantifiedMissing", quantified},
	{"FeedbackRecommendationGood", "FeedbackRecommendationMissing", anyKeyword(recommendationKeywords)},
}

// Heuristic reviews the transcript's candidate messages against Checks and
// notes heavy hint use and terse answers.
func Heuristic(transcript []model.Message) Report {
	var student []string
	hints := 0
	for _, m := range transcript {
		switch {
		case m.Role == model.RoleStudent:
			student = append(student, m.Text)
		case m.Tag == model.TagHint:
			hints++
		}
	}

	var r Report
	if len(student) == 0 {
		r.Improvements = append(r.Improvements, "FeedbackNoAnswers")
		return r
	}
	for _, c := range Checks {
		if c.Passed(student) {
			r.Strengths = append(r.Strengths, c.Strength)
		} else {
			r.Improvements = append(r.Improvements, c.Improvement)
		}
	}

	if hints == 0 {
		r.Strengths = append(r.Strengths, "FeedbackNoHints")
	} else if hints >= 3 {
		r.Improvements = append(r.Improvements, "FeedbackManyHints")
	}

	terse := 0
	for _, s := range student {
		if matcher.IsLowEffort(s, false) {
			terse++
		}
	}
	if terse*3 >= len(student) {
		r.Improvements = append(r.Improvements, "FeedbackTerse")
	}
	return r
}

func anyKeyword(keywords []matcher.Keyword) func([]string) bool {
	return func(student []string) bool {
		for _, s := range student {
			if matcher.AnyMatch(s, keywords) {
				return true
			}
		}
		return false
	}
}

// quantified requires numbers in at least two candidate messages.
func quantified(student []string) bool {
	n := 0
	for _, s := range student {
		if len(matcher.Numbers(s)) > 0 {
			n++
		}
	}
	return n >= 2
}
