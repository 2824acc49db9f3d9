package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/casecoach/internal/cases"
	"github.com/pavelanni/casecoach/internal/feedback"
	"github.com/pavelanni/casecoach/internal/handler/views"
	"github.com/pavelanni/casecoach/internal/interview"
	"github.com/pavelanni/casecoach/internal/model"
	"github.com/pavelanni/casecoach/internal/session"
	"github.com/pavelanni/casecoach/internal/store"
)

// notices maps the ?notice= values of the interview page to message IDs.
var notices = map[string]string{
	"pending":  "NoticeReplyPending",
	"conflict": "NoticeConflict",
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	filter := cases.Filter{
		Category:   r.URL.Query().Get("category"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}

	rows, err := h.caseRows(learner, filter)
	if err != nil {
		slog.Error("failed to list cases", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := h.store.LearnerStats(learner)
	if err != nil {
		slog.Error("failed to load stats", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderPage(w, r, http.StatusOK, views.IndexPage(views.IndexView{
		Cases:        rows,
		Categories:   h.catalog.Categories(),
		Difficulties: h.catalog.Difficulties(),
		Category:     filter.Category,
		Difficulty:   filter.Difficulty,
		Stats:        stats,
	}))
}

// caseRows lists the filtered catalog with the learner's latest score and rating.
func (h *Handler) caseRows(learner string, f cases.Filter) ([]views.CaseRow, error) {
	latest, err := h.store.LatestScores(learner)
	if err != nil {
		return nil, err
	}
	ratings, err := h.store.ListRatings(learner)
	if err != nil {
		return nil, err
	}
	var rows []views.CaseRow
	for _, sc := range h.catalog.List(f) {
		row := views.CaseRow{
			ID:         sc.ID,
			Title:      sc.Title,
			Category:   sc.Category,
			Difficulty: sc.Difficulty,
			Summary:    sc.Summary,
			Rating:     ratings[sc.ID],
		}
		if a, ok := latest[sc.ID]; ok {
			score := a.Score
			row.LatestScore = &score
			row.LatestAt = a.CompletedAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	ls, err := h.startSession(r.Context(), model.LearnerFromContext(r.Context()), caseID)
	if errors.Is(err, interview.ErrUnknownCase) {
		http.Error(w, "case not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to start interview", "case_id", caseID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.interviewPath(ls.data.ID, ""), http.StatusSeeOther)
}

func (h *Handler) interviewPath(sessionID, suffix string) string {
	return h.path("/interview/" + url.PathEscape(sessionID) + suffix)
}

func (h *Handler) handleInterviewPage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ls, err := h.loadSession(r.Context(), model.LearnerFromContext(r.Context()), sessionID)
	if errors.Is(err, errSessionNotFound) {
		http.Error(w, "interview not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to load interview", "session_id", sessionID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sc, err := h.engine.Script(ls.state.CaseID)
	if err != nil {
		slog.Error("interview case unavailable", "session_id", sessionID, "case_id", ls.state.CaseID, "error", err)
		http.Error(w, "case no longer available", http.StatusGone)
		return
	}

	v := views.InterviewView{
		SessionID: sessionID,
		CaseID:    sc.ID,
		Title:     sc.Title,
		Category:  sc.Category,
		Exhibits:  sc.Exhibits,
		Messages:  ls.state.Messages,
		Phase:     string(ls.state.Phase),
		HintsUsed: ls.state.HintsUsed,
		Complete:  ls.state.Complete(),
		Notice:    notices[r.URL.Query().Get("notice")],
	}
	if h.now().Before(ls.state.PendingUntil) {
		v.ReadyAt = ls.state.PendingUntil
	}
	h.renderPage(w, r, http.StatusOK, views.InterviewPage(v))
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	h.applyAndRedirect(w, r, func(ctx context.Context, st *interview.State) (interview.Turn, error) {
		return h.engine.Submit(ctx, st, text)
	})
}

func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	h.applyAndRedirect(w, r, h.engine.Hint)
}

// applyAndRedirect runs an engine event for the session in the URL and
// redirects to the interview page, or to the result page once complete.
func (h *Handler) applyAndRedirect(w http.ResponseWriter, r *http.Request, event eventFunc) {
	sessionID := chi.URLParam(r, "sessionID")
	ls, _, err := h.apply(r.Context(), model.LearnerFromContext(r.Context()), sessionID, event)
	switch {
	case errors.Is(err, errSessionNotFound):
		http.Error(w, "interview not found", http.StatusNotFound)
		return
	case errors.Is(err, interview.ErrReplyPending):
		http.Redirect(w, r, h.interviewPath(sessionID, "?notice=pending"), http.StatusSeeOther)
		return
	case errors.Is(err, interview.ErrUnknownCase):
		slog.Warn("interview case unavailable", "session_id", sessionID, "error", err)
		http.Error(w, "case no longer available", http.StatusGone)
		return
	case errors.Is(err, session.ErrVersionConflict), errors.Is(err, session.ErrNotFound):
		slog.Warn("concurrent interview update", "session_id", sessionID, "error", err)
		http.Redirect(w, r, h.interviewPath(sessionID, "?notice=conflict"), http.StatusSeeOther)
		return
	case err != nil:
		slog.Error("interview event failed", "session_id", sessionID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ls.state.Complete() {
		http.Redirect(w, r, h.interviewPath(sessionID, "/result"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.interviewPath(sessionID, ""), http.StatusSeeOther)
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	old, err := h.loadSession(r.Context(), learner, sessionID)
	if errors.Is(err, errSessionNotFound) {
		http.Error(w, "interview not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		slog.Warn("failed to delete restarted session", "session_id", sessionID, "error", err)
	}
	ls, err := h.startSession(r.Context(), learner, old.state.CaseID)
	if err != nil {
		slog.Error("failed to restart interview", "case_id", old.state.CaseID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.interviewPath(ls.data.ID, ""), http.StatusSeeOther)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	a, err := h.store.GetAttemptBySession(sessionID)
	if err != nil {
		slog.Error("failed to load attempt", "session_id", sessionID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil || a.LearnerID != learner {
		// Not finished yet: send a live interview back to its page.
		if _, err := h.loadSession(r.Context(), learner, sessionID); err == nil {
			http.Redirect(w, r, h.interviewPath(sessionID, ""), http.StatusSeeOther)
			return
		}
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}

	transcript, err := h.store.GetTranscript(a.ID)
	if err != nil {
		slog.Error("failed to load transcript", "attempt_id", a.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rating, err := h.store.GetRating(learner, a.CaseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	v := views.ResultView{
		SessionID:      sessionID,
		CaseID:         a.CaseID,
		Title:          a.Title,
		Category:       a.Category,
		Score:          a.Score,
		ElapsedSeconds: a.ElapsedSeconds,
		HintsUsed:      a.HintsUsed,
		Milestones:     a.Milestones,
		Feedback:       feedback.Heuristic(transcript),
		Debrief:        h.debrief(r.Context(), a, transcript),
		Messages:       transcript,
	}
	if rating != nil {
		v.Rating = rating.Rating
	}
	h.renderPage(w, r, http.StatusOK, views.ResultPage(v))
}

func (h *Handler) handleRate(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, ok := h.catalog.Get(caseID); !ok {
		http.Error(w, "case not found", http.StatusNotFound)
		return
	}
	rating, err := strconv.Atoi(r.FormValue("rating"))
	if err != nil {
		http.Error(w, "invalid rating", http.StatusBadRequest)
		return
	}
	_, _, err = h.store.RateCase(model.LearnerFromContext(r.Context()), caseID, rating)
	if errors.Is(err, store.ErrInvalidRating) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("failed to rate case", "case_id", caseID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sid := r.FormValue("session_id"); sid != "" {
		http.Redirect(w, r, h.interviewPath(sid, "/result"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	stats, err := h.store.LearnerStats(learner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	attempts, err := h.store.ListAttempts(learner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, http.StatusOK, views.StatsPage(views.StatsView{Stats: stats, Attempts: attempts}))
}
