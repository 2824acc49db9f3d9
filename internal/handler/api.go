package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/casecoach/internal/cases"
	"github.com/pavelanni/casecoach/internal/feedback"
	"github.com/pavelanni/casecoach/internal/interview"
	"github.com/pavelanni/casecoach/internal/model"
	"github.com/pavelanni/casecoach/internal/session"
	"github.com/pavelanni/casecoach/internal/store"
)

const maxJSONBody = 64 << 10

type apiError struct {
	Error        string `json:"error"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

type apiCase struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Summary     string     `json:"summary"`
	LatestScore *int       `json:"latest_score,omitempty"`
	LatestAt    *time.Time `json:"latest_at,omitempty"`
	Rating      int        `json:"rating,omitempty"`
}

type apiCaseDetail struct {
	apiCase
	Prompt   string              `json:"prompt"`
	Exhibits []interview.Exhibit `json:"exhibits"`
	Topics   []string            `json:"topics"`
}

type apiSession struct {
	ID        string           `json:"id"`
	CaseID    string           `json:"case_id"`
	Phase     interview.Phase  `json:"phase"`
	Complete  bool             `json:"complete"`
	HintsUsed int              `json:"hints_used"`
	Score     *int             `json:"score,omitempty"`
	ReadyAt   time.Time        `json:"ready_at"`
	Messages  []model.Message  `json:"messages"`
	Feedback  *feedback.Report `json:"feedback,omitempty"`
}

type apiTurn struct {
	Session apiSession     `json:"session"`
	Turn    interview.Turn `json:"turn"`
}

// requireJSON rejects API writes that are not JSON. Browsers cannot send a
// cross-site JSON request without a preflight, so this also guards the
// cookie-authenticated API against form-based CSRF.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeJSON(w, http.StatusUnsupportedMediaType, apiError{Error: "content type must be application/json"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// decodeJSON decodes an optional request body into v.
func decodeJSON(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) apiListCases(w http.ResponseWriter, r *http.Request) {
	filter := cases.Filter{
		Category:   r.URL.Query().Get("category"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}
	rows, err := h.caseRows(model.LearnerFromContext(r.Context()), filter)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]apiCase, 0, len(rows))
	for _, row := range rows {
		c := apiCase{
			ID:          row.ID,
			Title:       row.Title,
			Category:    row.Category,
			Difficulty:  row.Difficulty,
			Summary:     row.Summary,
			LatestScore: row.LatestScore,
			Rating:      row.Rating,
		}
		if row.LatestScore != nil {
			at := row.LatestAt
			c.LatestAt = &at
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) apiGetCase(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.catalog.Get(chi.URLParam(r, "caseID"))
	if !ok {
		writeAPIError(w, http.StatusNotFound, "case not found")
		return
	}
	writeJSON(w, http.StatusOK, apiCaseDetail{
		apiCase: apiCase{
			ID:         sc.ID,
			Title:      sc.Title,
			Category:   sc.Category,
			Difficulty: sc.Difficulty,
			Summary:    sc.Summary,
		},
		Prompt:   sc.Prompt,
		Exhibits: sc.Exhibits,
		Topics:   sc.Topics(),
	})
}

func (h *Handler) toAPISession(ls *liveSession) apiSession {
	st := ls.state
	out := apiSession{
		ID:        ls.data.ID,
		CaseID:    st.CaseID,
		Phase:     st.Phase,
		Complete:  st.Complete(),
		HintsUsed: st.HintsUsed,
		Score:     st.Score,
		ReadyAt:   st.PendingUntil,
		Messages:  st.Messages,
	}
	if out.ReadyAt.IsZero() || out.ReadyAt.Before(h.now()) {
		out.ReadyAt = h.now()
	}
	if st.Complete() {
		report := feedback.Heuristic(st.Messages)
		out.Feedback = &report
	}
	return out
}

func (h *Handler) apiStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseID string `json:"case_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.CaseID == "" {
		writeAPIError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	ls, err := h.startSession(r.Context(), model.LearnerFromContext(r.Context()), req.CaseID)
	if errors.Is(err, interview.ErrUnknownCase) {
		writeAPIError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		slog.Error("failed to start interview", "case_id", req.CaseID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h.toAPISession(ls))
}

func (h *Handler) apiGetSession(w http.ResponseWriter, r *http.Request) {
	ls, err := h.loadSession(r.Context(), model.LearnerFromContext(r.Context()), chi.URLParam(r, "sessionID"))
	if errors.Is(err, errSessionNotFound) {
		writeAPIError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.toAPISession(ls))
}

func (h *Handler) apiSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.apiApply(w, r, func(ctx context.Context, st *interview.State) (interview.Turn, error) {
		return h.engine.Submit(ctx, st, req.Text)
	})
}

func (h *Handler) apiHint(w http.ResponseWriter, r *http.Request) {
	h.apiApply(w, r, h.engine.Hint)
}

func (h *Handler) apiApply(w http.ResponseWriter, r *http.Request, event eventFunc) {
	sessionID := chi.URLParam(r, "sessionID")
	ls, turn, err := h.apply(r.Context(), model.LearnerFromContext(r.Context()), sessionID, event)
	switch {
	case errors.Is(err, errSessionNotFound):
		writeAPIError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, interview.ErrReplyPending):
		wait := ls.state.PendingUntil.Sub(h.now())
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, apiError{Error: err.Error(), RetryAfterMS: wait.Milliseconds()})
		return
	case errors.Is(err, interview.ErrUnknownCase):
		slog.Warn("interview case unavailable", "session_id", sessionID, "error", err)
		writeAPIError(w, http.StatusGone, "case no longer available")
		return
	case errors.Is(err, session.ErrVersionConflict), errors.Is(err, session.ErrNotFound):
		writeAPIError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Error("interview event failed", "session_id", sessionID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTurn{Session: h.toAPISession(ls), Turn: turn})
}

func (h *Handler) apiLatestScore(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	a, err := h.store.LatestScore(model.LearnerFromContext(r.Context()), caseID)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeAPIError(w, http.StatusNotFound, "no score for case")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) apiRateCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, ok := h.catalog.Get(caseID); !ok {
		writeAPIError(w, http.StatusNotFound, "case not found")
		return
	}
	var req struct {
		Rating int `json:"rating"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	stored, created, err := h.store.RateCase(model.LearnerFromContext(r.Context()), caseID, req.Rating)
	if errors.Is(err, store.ErrInvalidRating) {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"case_id": caseID, "rating": stored, "created": created})
}

func (h *Handler) apiStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.LearnerStats(model.LearnerFromContext(r.Context()))
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
