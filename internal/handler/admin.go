package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/casecoach/internal/cases"
	"github.com/pavelanni/casecoach/internal/feedback"
	"github.com/pavelanni/casecoach/internal/handler/views"
	appI18n "github.com/pavelanni/casecoach/internal/i18n"
	"github.com/pavelanni/casecoach/internal/model"
)

const maxCaseUpload = 1 << 20

func (h *Handler) handleAdminAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.store.ListAllAttempts()
	if err != nil {
		slog.Error("failed to list attempts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, http.StatusOK, views.AdminAttemptsPage(attempts))
}

func (h *Handler) handleAdminAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid attempt ID", http.StatusBadRequest)
		return
	}
	a, err := h.store.GetAttempt(id)
	if err != nil {
		slog.Error("failed to load attempt", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}
	transcript, err := h.store.GetTranscript(id)
	if err != nil {
		slog.Error("failed to load transcript", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, http.StatusOK, views.AdminAttemptPage(views.AttemptView{
		Attempt:  *a,
		Messages: transcript,
		Feedback: feedback.Heuristic(transcript),
	}))
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAll()
	if err != nil {
		slog.Error("failed to export attempts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="casecoach-attempts.json"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

// adminCaseRows lists the whole catalog, marking cases that came from an upload.
func (h *Handler) adminCaseRows() ([]views.CaseRow, error) {
	uploaded, err := h.store.ListCaseScripts()
	if err != nil {
		return nil, err
	}
	isUploaded := make(map[string]bool, len(uploaded))
	for _, cs := range uploaded {
		isUploaded[cs.CaseID] = true
	}
	var rows []views.CaseRow
	for _, sc := range h.catalog.List(cases.Filter{}) {
		rows = append(rows, views.CaseRow{
			ID:         sc.ID,
			Title:      sc.Title,
			Category:   sc.Category,
			Difficulty: sc.Difficulty,
			Summary:    sc.Summary,
			Uploaded:   isUploaded[sc.ID],
		})
	}
	return rows, nil
}

func (h *Handler) renderAdminCases(w http.ResponseWriter, r *http.Request, status int, msg string, isError bool) {
	rows, err := h.adminCaseRows()
	if err != nil {
		slog.Error("failed to list cases", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, status, views.AdminCasesPage(views.AdminCasesView{
		Cases:   rows,
		Message: msg,
		IsError: isError,
	}))
}

func (h *Handler) handleAdminCasesPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminCases(w, r, http.StatusOK, "", false)
}

func (h *Handler) handleUploadCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, header, err := r.FormFile("case_file")
	if err != nil {
		h.renderAdminCases(w, r, http.StatusBadRequest, appI18n.T(ctx, "UploadNoFile"), true)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCaseUpload+1))
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if len(data) > maxCaseUpload {
		h.renderAdminCases(w, r, http.StatusRequestEntityTooLarge, appI18n.T(ctx, "UploadTooLarge"), true)
		return
	}

	sc, err := cases.Parse(data)
	if err != nil {
		slog.Warn("rejected case upload", "filename", header.Filename, "error", err)
		h.renderAdminCases(w, r, http.StatusBadRequest,
			appI18n.Td(ctx, "UploadInvalid", map[string]any{"Error": err.Error()}), true)
		return
	}
	if _, exists := h.catalog.Get(sc.ID); exists {
		h.renderAdminCases(w, r, http.StatusConflict,
			appI18n.Td(ctx, "UploadDuplicate", map[string]any{"ID": sc.ID}), true)
		return
	}

	var uploadedBy *int64
	if user := model.UserFromContext(ctx); user != nil {
		uploadedBy = &user.ID
	}
	hash, err := h.store.SaveCaseScript(sc.ID, data, uploadedBy)
	if err != nil {
		slog.Error("failed to save case script", "case_id", sc.ID, "error", err)
		http.Error(w, "failed to save case: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.catalog.Add(sc); err != nil {
		if errors.Is(err, cases.ErrDuplicateCase) {
			h.renderAdminCases(w, r, http.StatusConflict,
				appI18n.Td(ctx, "UploadDuplicate", map[string]any{"ID": sc.ID}), true)
			return
		}
		slog.Error("failed to add case", "case_id", sc.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("uploaded case via admin", "filename", header.Filename, "case_id", sc.ID, "sha256", hash)
	h.renderAdminCases(w, r, http.StatusOK,
		appI18n.Td(ctx, "UploadSuccess", map[string]any{"Title": sc.Title, "ID": sc.ID}), false)
}

func (h *Handler) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	cs, err := h.store.GetCaseScript(caseID)
	if err != nil {
		slog.Error("failed to load case script", "case_id", caseID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cs == nil {
		h.renderAdminCases(w, r, http.StatusBadRequest,
			appI18n.Td(r.Context(), "DeleteBuiltin", map[string]any{"ID": caseID}), true)
		return
	}
	if err := h.store.DeleteCaseScript(caseID); err != nil {
		slog.Error("failed to delete case script", "case_id", caseID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.catalog.Remove(caseID)
	slog.Info("deleted uploaded case", "case_id", caseID)
	http.Redirect(w, r, h.path("/admin/cases"), http.StatusSeeOther)
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "")
}

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, msg string) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, status, views.AdminUsersPage(views.AdminUsersView{Users: users, Message: msg}))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	displayName := r.FormValue("display_name")
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))

	if username == "" || password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	if role != model.UserRoleAdmin && role != model.UserRoleCoach {
		http.Error(w, fmt.Sprintf("invalid role %q", role), http.StatusBadRequest)
		return
	}
	existing, err := h.store.GetUserByUsername(username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		h.renderAdminUsers(w, r, http.StatusConflict,
			appI18n.Td(r.Context(), "UserExists", map[string]any{"Username": username}))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if displayName == "" {
		displayName = username
	}

	_, err = h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		http.Error(w, "failed to create user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if user := model.UserFromContext(r.Context()); user != nil && user.ID == id {
		http.Error(w, "cannot deactivate yourself", http.StatusBadRequest)
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}
