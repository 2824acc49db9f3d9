package interview

import (
	"maps"
	"slices"
	"time"

	"github.com/pavelanni/casecoach/internal/model"
)

// State is everything the engine knows about one live interview.
// It is plain data so it can be stored between requests.
type State struct {
	SessionID    string          `json:"session_id"`
	CaseID       string          `json:"case_id"`
	Phase        Phase           `json:"phase"`
	Visited      []Phase         `json:"visited"`
	RevealedInfo map[string]bool `json:"revealed_info"`
	HintLevels   map[string]int  `json:"hint_levels"`
	Milestones   map[string]bool `json:"milestones"`
	HintsUsed    int             `json:"hints_used"`
	NudgeCount   int             `json:"nudge_count"`
	Messages     []model.Message `json:"messages"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Score        *int            `json:"score,omitempty"`
	PendingUntil time.Time       `json:"pending_until"`
}

// Complete reports whether the interview reached its terminal phase.
func (s *State) Complete() bool {
	return s.Phase == PhaseComplete
}

// Answers returns the student's messages in order.
func (s *State) Answers() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == model.RoleStudent {
			out = append(out, m.Text)
		}
	}
	return out
}

// Elapsed returns the time spent in the interview. For a running interview it
// is measured against now.
func (s *State) Elapsed(now time.Time) time.Duration {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// AchievedMilestones returns the names of the milestones set so far, sorted.
func (s *State) AchievedMilestones() []string {
	var out []string
	for name, ok := range s.Milestones {
		if ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.Visited = slices.Clone(s.Visited)
	c.Messages = slices.Clone(s.Messages)
	c.RevealedInfo = maps.Clone(s.RevealedInfo)
	c.HintLevels = maps.Clone(s.HintLevels)
	c.Milestones = maps.Clone(s.Milestones)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	return &c
}

// HintResult describes an escalator step.
type HintResult struct {
	Topic       string `json:"topic"`
	Level       int    `json:"level"`
	Walkthrough bool   `json:"walkthrough"`
	Text        string `json:"text"`
}

// Completion is handed to the Reporter when an interview finishes.
type Completion struct {
	SessionID  string          `json:"session_id"`
	CaseID     string          `json:"case_id"`
	Category   string          `json:"category"`
	Title      string          `json:"title"`
	Score      int             `json:"score"`
	Elapsed    time.Duration   `json:"elapsed"`
	Answers    []string        `json:"answers"`
	Milestones []string        `json:"milestones"`
	HintsUsed  int             `json:"hints_used"`
	Messages   []model.Message `json:"-"`
}

// Turn is the result of one input event.
type Turn struct {
	Phase      Phase           `json:"phase"`
	Advanced   bool            `json:"advanced"`
	Ignored    bool            `json:"ignored"`
	Messages   []model.Message `json:"messages"`
	Hint       *HintResult     `json:"hint,omitempty"`
	ReadyAt    time.Time       `json:"ready_at"`
	Completion *Completion     `json:"completion,omitempty"`
}
