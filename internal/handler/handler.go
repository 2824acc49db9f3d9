package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/casecoach/internal/cases"
	"github.com/pavelanni/casecoach/internal/interview"
	"github.com/pavelanni/casecoach/internal/llm"
	"github.com/pavelanni/casecoach/internal/llm/prompts"
	"github.com/pavelanni/casecoach/internal/model"
	"github.com/pavelanni/casecoach/internal/session"
	"github.com/pavelanni/casecoach/internal/store"
)

const (
	learnerCookieName = "learner"
	learnerHeader     = "X-Learner-ID"
	debriefTimeout    = 60 * time.Second
)

var errSessionNotFound = errors.New("session not found")

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions session.Store
	catalog  *cases.Catalog
	engine   *interview.Engine
	llm      *llm.Client
	config   model.ServerConfig
	now      func() time.Time
}

// New creates a new Handler. l may be nil to disable model debriefs. The
// engine options are applied after the handler installs itself as the
// completion reporter.
func New(s *store.Store, sessions session.Store, catalog *cases.Catalog, l *llm.Client, cfg model.ServerConfig, opts ...interview.Option) (*Handler, error) {
	if s == nil || sessions == nil || catalog == nil {
		return nil, errors.New("handler: store, session store and catalog are required")
	}
	h := &Handler{
		store:    s,
		sessions: sessions,
		catalog:  catalog,
		llm:      l,
		config:   cfg,
		now:      time.Now,
	}
	h.engine = interview.NewEngine(catalog, append([]interview.Option{interview.WithReporter(h)}, opts...)...)
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.learnerMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Use(requireJSON)
			r.Get("/cases", h.apiListCases)
			r.Get("/cases/{caseID}", h.apiGetCase)
			r.Post("/sessions", h.apiStartSession)
			r.Get("/sessions/{sessionID}", h.apiGetSession)
			r.Post("/sessions/{sessionID}/messages", h.apiSubmit)
			r.Post("/sessions/{sessionID}/hint", h.apiHint)
			r.Get("/scores/{caseID}", h.apiLatestScore)
			r.Post("/ratings/{caseID}", h.apiRateCase)
			r.Get("/stats", h.apiStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.csrfMiddleware)
			r.Use(h.optionalAuth)

			r.Get("/", h.handleIndex)
			r.Post("/cases/{caseID}/start", h.handleStart)
			r.Post("/cases/{caseID}/rate", h.handleRate)
			r.Get("/interview/{sessionID}", h.handleInterviewPage)
			r.Post("/interview/{sessionID}/message", h.handleMessage)
			r.Post("/interview/{sessionID}/hint", h.handleHint)
			r.Post("/interview/{sessionID}/restart", h.handleRestart)
			r.Get("/interview/{sessionID}/result", h.handleResult)
			r.Get("/stats", h.handleStats)

			r.Get("/login", h.handleLoginPage)
			r.Post("/login", h.handleLogin)
			r.Post("/logout", h.handleLogout)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Group(func(r chi.Router) {
					r.Use(requireRole(model.UserRoleAdmin, model.UserRoleCoach))
					r.Get("/attempts", h.handleAdminAttempts)
					r.Get("/attempts/{attemptID}", h.handleAdminAttempt)
					r.Get("/export", h.handleAdminExport)
				})
				r.Group(func(r chi.Router) {
					r.Use(requireRole(model.UserRoleAdmin))
					r.Get("/cases", h.handleAdminCasesPage)
					r.Post("/cases", h.handleUploadCase)
					r.Post("/cases/{caseID}/delete", h.handleDeleteCase)
					r.Get("/users", h.handleAdminUsersPage)
					r.Post("/users", h.handleCreateUser)
					r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				})
			})
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// learnerMiddleware identifies the anonymous learner by a UUID cookie. API
// clients may send the id in the X-Learner-ID header instead.
func (h *Handler) learnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if v := r.Header.Get(learnerHeader); v != "" {
			if _, err := uuid.Parse(v); err == nil {
				id = v
			}
		}
		if id == "" {
			if c, err := r.Cookie(learnerCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					id = c.Value
				}
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     learnerCookieName,
				Value:    id,
				Path:     h.cookiePath(),
				MaxAge:   365 * 24 * 60 * 60,
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			slog.Debug("new learner", "learner_id", id)
		}
		w.Header().Set(learnerHeader, id)
		next.ServeHTTP(w, r.WithContext(model.ContextWithLearner(r.Context(), id)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		slog.Error("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ReportCompletion records a finished interview for the learner in ctx.
func (h *Handler) ReportCompletion(ctx context.Context, c interview.Completion) error {
	learner := model.LearnerFromContext(ctx)
	if learner == "" {
		return errors.New("no learner in context")
	}
	_, err := h.store.RecordAttempt(model.Attempt{
		LearnerID:      learner,
		SessionID:      c.SessionID,
		CaseID:         c.CaseID,
		Category:       c.Category,
		Title:          c.Title,
		Score:          c.Score,
		ElapsedSeconds: int(c.Elapsed.Seconds()),
		HintsUsed:      c.HintsUsed,
		Milestones:     c.Milestones,
		CompletedAt:    h.now(),
		Messages:       c.Messages,
	})
	return err
}

// liveSession is a stored session with its decoded interview state.
type liveSession struct {
	data  *session.SessionData
	state *interview.State
}

func (h *Handler) startSession(ctx context.Context, learnerID, caseID string) (*liveSession, error) {
	id := uuid.NewString()
	st, err := h.engine.Start(caseID, id)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	data := &session.SessionData{ID: id, LearnerID: learnerID, CaseID: caseID, State: raw}
	if err := h.sessions.Create(ctx, data); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("interview started", "session_id", id, "case_id", caseID, "learner_id", learnerID)
	return &liveSession{data: data, state: st}, nil
}

// loadSession returns a session owned by learnerID or errSessionNotFound.
func (h *Handler) loadSession(ctx context.Context, learnerID, id string) (*liveSession, error) {
	data, err := h.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if data == nil || data.LearnerID != learnerID {
		return nil, errSessionNotFound
	}
	var st interview.State
	if err := json.Unmarshal(data.State, &st); err != nil {
		return nil, fmt.Errorf("decode state of session %s: %w", id, err)
	}
	return &liveSession{data: data, state: &st}, nil
}

// eventFunc is one engine input event: Engine.Hint or a bound Engine.Submit.
type eventFunc func(context.Context, *interview.State) (interview.Turn, error)

// apply runs one engine event against a stored session and saves the new
// state. A failing completion report is logged; the state is still saved.
func (h *Handler) apply(ctx context.Context, learnerID, id string, event eventFunc) (*liveSession, interview.Turn, error) {
	ls, err := h.loadSession(ctx, learnerID, id)
	if err != nil {
		return nil, interview.Turn{}, err
	}
	turn, err := event(model.ContextWithLearner(ctx, learnerID), ls.state)
	if err != nil {
		if turn.Completion == nil {
			return ls, turn, err
		}
		slog.Error("failed to record attempt", "session_id", id, "error", err)
	}
	if turn.Ignored {
		return ls, turn, nil
	}
	raw, err := json.Marshal(ls.state)
	if err != nil {
		return ls, turn, fmt.Errorf("encode state: %w", err)
	}
	ls.data.State = raw
	if err := h.sessions.Update(ctx, ls.data); err != nil {
		return ls, turn, err
	}
	if turn.Completion != nil {
		slog.Info("interview completed", "session_id", id, "case_id", turn.Completion.CaseID, "score", turn.Completion.Score)
	}
	return ls, turn, nil
}

// debrief returns the stored model debrief of an attempt, generating and
// storing it first when a model is configured. Failures are logged and
// yield nil.
func (h *Handler) debrief(ctx context.Context, a *model.Attempt, transcript []model.Message) *model.Debrief {
	if a.Debrief != nil || h.llm == nil || !h.config.DebriefEnabled {
		return a.Debrief
	}
	ctx, cancel := context.WithTimeout(ctx, debriefTimeout)
	defer cancel()
	d, err := h.llm.Debrief(ctx, llm.DebriefRequest{
		Variant:    prompts.Variant(h.config.DebriefVariant),
		Title:      a.Title,
		Category:   a.Category,
		Summary:    h.caseSummary(a.CaseID),
		Score:      a.Score,
		HintsUsed:  a.HintsUsed,
		Milestones: a.Milestones,
		Messages:   transcript,
	})
	if err != nil {
		slog.Warn("debrief failed, showing heuristic feedback", "attempt_id", a.ID, "error", err)
		return nil
	}
	if err := h.store.SetAttemptDebrief(a.ID, *d); err != nil {
		slog.Error("failed to store debrief", "attempt_id", a.ID, "error", err)
	}
	a.Debrief = d
	return d
}

func (h *Handler) caseSummary(caseID string) string {
	if sc, ok := h.catalog.Get(caseID); ok {
		return sc.Summary
	}
	return ""
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
