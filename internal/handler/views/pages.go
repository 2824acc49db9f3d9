package views

import (
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/casecoach/internal/feedback"
	"github.com/pavelanni/casecoach/internal/interview"
	"github.com/pavelanni/casecoach/internal/model"
)

// CaseRow is one case in a listing.
type CaseRow struct {
	ID          string
	Title       string
	Category    string
	Difficulty  string
	Summary     string
	LatestScore *int
	LatestAt    time.Time
	Rating      int
	Uploaded    bool
}

// IndexView is the case list.
type IndexView struct {
	Cases        []CaseRow
	Categories   []string
	Difficulties []string
	Category     string
	Difficulty   string
	Stats        model.Stats
}

// IndexPage renders the case list.
func IndexPage(v IndexView) templ.Component {
	return render("index", "AppTitle", v)
}

// InterviewView is a live interview.
type InterviewView struct {
	SessionID string
	CaseID    string
	Title     string
	Category  string
	Exhibits  []interview.Exhibit
	Messages  []model.Message
	Phase     string
	HintsUsed int
	Complete  bool
	// ReadyAt is when the interviewer finishes typing; zero when not pending.
	ReadyAt time.Time
	Notice  string
}

// Pending reports whether the interviewer is still typing.
func (v InterviewView) Pending() bool {
	return !v.ReadyAt.IsZero() && time.Now().Before(v.ReadyAt)
}

// WaitMillis is the remaining typing delay.
func (v InterviewView) WaitMillis() int64 {
	if !v.Pending() {
		return 0
	}
	return time.Until(v.ReadyAt).Milliseconds()
}

// InterviewPage renders a live interview.
func InterviewPage(v InterviewView) templ.Component {
	return render("interview", "", v)
}

// ResultView is the summary of a finished interview.
type ResultView struct {
	SessionID      string
	CaseID         string
	Title          string
	Category       string
	Score          int
	ElapsedSeconds int
	HintsUsed      int
	Milestones     []string
	Feedback       feedback.Report
	Debrief        *model.Debrief
	Rating         int
	Messages       []model.Message
}

// ResultPage renders the result of a finished interview.
func ResultPage(v ResultView) templ.Component {
	return render("result", "ResultTitle", v)
}

// StatsView is a learner's progress.
type StatsView struct {
	Stats    model.Stats
	Attempts []model.Attempt
}

// StatsPage renders the learner's progress.
func StatsPage(v StatsView) templ.Component {
	return render("stats", "StatsTitle", v)
}

// LoginPage renders the admin sign-in form.
func LoginPage(errMsg string) templ.Component {
	return render("login", "LoginTitle", errMsg)
}

// AdminAttemptsPage lists every stored attempt.
func AdminAttemptsPage(attempts []model.Attempt) templ.Component {
	return render("admin_attempts", "AdminAttempts", attempts)
}

// AttemptView is one stored attempt with its transcript.
type AttemptView struct {
	Attempt  model.Attempt
	Messages []model.Message
	Feedback feedback.Report
}

// AdminAttemptPage renders one stored attempt.
func AdminAttemptPage(v AttemptView) templ.Component {
	return render("admin_attempt", "AdminAttempt", v)
}

// AdminCasesView is the case management page.
type AdminCasesView struct {
	Cases   []CaseRow
	Message string
	IsError bool
}

// AdminCasesPage renders the case list and upload form.
func AdminCasesPage(v AdminCasesView) templ.Component {
	return render("admin_cases", "AdminCases", v)
}

// AdminUsersView is the user management page.
type AdminUsersView struct {
	Users   []model.User
	Message string
}

// AdminUsersPage renders the user list and creation form.
func AdminUsersPage(v AdminUsersView) templ.Component {
	return render("admin_users", "AdminUsers", v)
}
