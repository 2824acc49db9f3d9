package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is chat message roles).
type UserRole string

const (
	// UserRoleAdmin can review all attempts and upload case scripts.
	UserRoleAdmin UserRole = "admin"
	// UserRoleCoach can review all attempts.
	UserRoleCoach UserRole = "coach"
)

// User represents an administrative user. Learners are anonymous and identified by cookie.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type learnerCtxKey struct{}

// ContextWithLearner stores the learner identifier in the request context.
func ContextWithLearner(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, learnerCtxKey{}, learnerID)
}

// LearnerFromContext retrieves the learner identifier (empty string if not set).
func LearnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(learnerCtxKey{}).(string)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role represents a chat message role.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleStudent     Role = "student"
	RoleSystem      Role = "system"
)

// Tag is an optional semantic marker on a message.
type Tag string

const (
	TagNone    Tag = ""
	TagInfo    Tag = "info"
	TagWarning Tag = "warning"
	TagSuccess Tag = "success"
	TagHint    Tag = "hint"
)

// Message is one entry of an interview transcript. Messages are never edited once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Tag       Tag       `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Attempt is a completed interview stored for a learner.
type Attempt struct {
	ID             int64     `json:"id"`
	LearnerID      string    `json:"learner_id"`
	SessionID      string    `json:"session_id,omitempty"`
	CaseID         string    `json:"case_id"`
	Category       string    `json:"category"`
	Title          string    `json:"title"`
	Score          int       `json:"score"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	HintsUsed      int       `json:"hints_used"`
	Milestones     []string  `json:"milestones"`
	Debrief        *Debrief  `json:"debrief,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
	Messages       []Message `json:"-"`
}

// Debrief is a model-written review of an attempt. It never changes the score.
type Debrief struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Rating is a learner's 1 to 5 rating of a case.
type Rating struct {
	LearnerID string    `json:"learner_id"`
	CaseID    string    `json:"case_id"`
	Rating    int       `json:"rating"`
	RatedAt   time.Time `json:"rated_at"`
}

// CategoryStats aggregates attempts of one case category.
type CategoryStats struct {
	Category string  `json:"category"`
	Attempts int     `json:"attempts"`
	Average  float64 `json:"average"`
	Best     int     `json:"best"`
}

// Stats aggregates all attempts of one learner.
type Stats struct {
	Attempts    int             `json:"attempts"`
	CasesTried  int             `json:"cases_tried"`
	Average     float64         `json:"average"`
	Best        int             `json:"best"`
	HintsUsed   int             `json:"hints_used"`
	ByCategory  []CategoryStats `json:"by_category"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath       string // URL prefix for sub-path deployments (e.g. "/practice")
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	DebriefVariant string // LLM debrief prompt variant (concise, standard, detailed)
	DebriefEnabled bool
}
