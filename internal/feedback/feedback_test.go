package feedback

import (
	"slices"
	"testing"

	"github.com/pavelanni/casecoach/internal/model"
)

func student(texts ...string) []model.Message {
	msgs := []model.Message{{Role: model.RoleInterviewer, Text: "What would you like to know?"}}
	for _, s := range texts {
		msgs = append(msgs, model.Message{Role: model.RoleStudent, Text: s})
	}
	return msgs
}

func hint() model.Message {
	return model.Message{Role: model.RoleInterviewer, Text: "Consider the market size.", Tag: model.TagHint}
}

func TestHeuristicStrongTranscript(t *testing.T) {
	got := Heuristic(student(
		"What is the client's objective and the profit target?",
		"First I would break down profit into revenue and costs. My hypothesis is that costs rose.",
		"Assuming 100 million tires at 5 dollars margin, that gives 500 million.",
		"So break-even volume is 2 million units.",
		"I recommend launching the product.",
	))

	want := []string{
		"FeedbackStructureGood", "FeedbackHypothesisGood", "FeedbackAssumptionsGood",
		"FeedbackQuantifiedGood", "FeedbackRecommendationGood", "FeedbackNoHints",
	}
	if !slices.Equal(got.Strengths, want) {
		t.Errorf("Strengths = %v, want %v", got.Strengths, want)
	}
	if len(got.Improvements) != 0 {
		t.Errorf("Improvements = %v, want none", got.Improvements)
	}
}

func TestHeuristicWeakTranscript(t *testing.T) {
	msgs := student("ok", "no idea", "help", "the answer is 12")
	msgs = append(msgs, hint(), hint(), hint())
	got := Heuristic(msgs)

	for _, id := range []string{
		"FeedbackStructureMissing", "FeedbackHypothesisMissing", "FeedbackAssumptionsMissing",
		"FeedbackQuantifiedMissing", "FeedbackRecommendationMissing",
		"FeedbackManyHints", "FeedbackTerse",
	} {
		if !slices.Contains(got.Improvements, id) {
			t.Errorf("Improvements missing %s: %v", id, got.Improvements)
		}
	}
	if len(got.Strengths) != 0 {
		t.Errorf("Strengths = %v, want none", got.Strengths)
	}
}

func TestHeuristicEmpty(t *testing.T) {
	got := Heuristic(nil)
	if !slices.Equal(got.Improvements, []string{"FeedbackNoAnswers"}) || len(got.Strengths) != 0 {
		t.Errorf("Heuristic(nil) = %+v", got)
	}
	if got.Empty() {
		t.Error("report with an improvement should not be Empty")
	}
	if !(Report{}).Empty() {
		t.Error("zero Report should be Empty")
	}
}

func TestHeuristicWordBoundaries(t *testing.T) {
	// "shoulder" must not count as a recommendation.
	got := Heuristic(student("The shoulder season matters for sales volumes here."))
	if slices.Contains(got.Strengths, "FeedbackRecommendationGood") {
		t.Error("shoulder matched the recommendation check")
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	msgs := student("I think costs are likely the driver, roughly 20 percent.", "Total is 4 million.")
	a, b := Heuristic(msgs), Heuristic(msgs)
	if !slices.Equal(a.Strengths, b.Strengths) || !slices.Equal(a.Improvements, b.Improvements) {
		t.Error("Heuristic is not deterministic")
	}
}
