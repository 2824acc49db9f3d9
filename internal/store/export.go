package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/casecoach/internal/model"
)

// ExportAll builds export-ready results from every stored attempt, oldest first.
func (s *Store) ExportAll() (model.AttemptsExport, error) {
	attempts, err := s.ListAllAttempts()
	if err != nil {
		return model.AttemptsExport{}, fmt.Errorf("list attempts: %w", err)
	}
	slices.Reverse(attempts)

	// Number each attempt per learner and case.
	attemptNumber := make(map[[2]string]int)
	ratings := make(map[string]map[string]int)

	results := make([]model.AttemptResult, 0, len(attempts))
	for _, a := range attempts {
		key := [2]string{a.LearnerID, a.CaseID}
		attemptNumber[key]++

		if _, ok := ratings[a.LearnerID]; !ok {
			r, err := s.ListRatings(a.LearnerID)
			if err != nil {
				return model.AttemptsExport{}, fmt.Errorf("ratings of %s: %w", a.LearnerID, err)
			}
			ratings[a.LearnerID] = r
		}

		msgs, err := s.GetTranscript(a.ID)
		if err != nil {
			return model.AttemptsExport{}, fmt.Errorf("transcript of attempt %d: %w", a.ID, err)
		}
		conv := make([]model.ConversationMsg, 0, len(msgs))
		for _, m := range msgs {
			conv = append(conv, model.ConversationMsg{
				Role:    string(m.Role),
				Tag:     string(m.Tag),
				Content: m.Text,
				At:      m.CreatedAt,
			})
		}

		results = append(results, model.AttemptResult{
			LearnerID:      a.LearnerID,
			AttemptNumber:  attemptNumber[key],
			CaseID:         a.CaseID,
			Title:          a.Title,
			Category:       a.Category,
			Score:          a.Score,
			ElapsedSeconds: a.ElapsedSeconds,
			HintsUsed:      a.HintsUsed,
			Milestones:     a.Milestones,
			Rating:         ratings[a.LearnerID][a.CaseID],
			Debrief:        a.Debrief,
			CompletedAt:    a.CompletedAt,
			Conversation:   conv,
		})
	}

	return model.AttemptsExport{
		GeneratedAt: time.Now().UTC(),
		NumAttempts: len(results),
		Results:     results,
	}, nil
}
