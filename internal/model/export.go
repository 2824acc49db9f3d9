package model

import "time"

// AttemptsExport is the top-level JSON structure for attempt export.
type AttemptsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	NumAttempts int             `json:"num_attempts"`
	Results     []AttemptResult `json:"results"`
}

// AttemptResult holds one attempt with its transcript for export.
type AttemptResult struct {
	LearnerID      string            `json:"learner_id"`
	AttemptNumber  int               `json:"attempt_number"`
	CaseID         string            `json:"case_id"`
	Title          string            `json:"title"`
	Category       string            `json:"category"`
	Score          int               `json:"score"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	HintsUsed      int               `json:"hints_used"`
	Milestones     []string          `json:"milestones"`
	Rating         int               `json:"rating,omitempty"`
	Debrief        *Debrief          `json:"debrief,omitempty"`
	CompletedAt    time.Time         `json:"completed_at"`
	Conversation   []ConversationMsg `json:"conversation"`
}

// ConversationMsg is a single message in an exported conversation.
type ConversationMsg struct {
	Role    string    `json:"role"`
	Tag     string    `json:"tag,omitempty"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
