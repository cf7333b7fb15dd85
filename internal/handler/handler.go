package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sebadog/radsim/internal/grading"
	appI18n "github.com/sebadog/radsim/internal/i18n"
	"github.com/sebadog/radsim/internal/model"
	"github.com/sebadog/radsim/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *grading.Manager
	config   model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, sessions *grading.Manager, cfg model.AppConfig) (*Handler, error) {
	return &Handler{store: s, sessions: sessions, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Get("/healthz", h.handleHealth)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/signup", h.handleSignup)
	r.Post("/auth/logout", h.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAuth)

		pr.Get("/auth/me", h.handleMe)
		pr.Post("/auth/password", h.handleUpdatePassword)

		pr.Get("/api/cases", h.handleListCases)
		pr.Get("/api/cases/{caseID}", h.handleGetCase)
		pr.Post("/api/cases/{caseID}/completed", h.handleSetCompleted)

		pr.Get("/api/cases/{caseID}/attempt", h.handleAttemptState)
		pr.Post("/api/cases/{caseID}/attempt", h.handleSubmitAttempt)
		pr.Post("/api/cases/{caseID}/giveup", h.handleGiveUp)
		pr.Post("/api/cases/{caseID}/reset", h.handleReset)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(model.UserRoleAdmin))

			ar.Post("/api/cases", h.handleCreateCase)
			ar.Put("/api/cases/{caseID}", h.handleUpdateCase)
			ar.Delete("/api/cases/{caseID}", h.handleDeleteCase)

			ar.Post("/admin/cases/import", h.handleImportCases)
			ar.Get("/admin/users", h.handleListUsers)
			ar.Post("/admin/users", h.handleCreateUser)
			ar.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			ar.Post("/admin/users/{userID}/password", h.handleSetUserPassword)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// redactCase hides the answer fields from a case payload until the
// learner has earned the reveal. Role gating alone is presentation-level;
// keeping the findings off the wire is what actually prevents peeking.
func redactCase(c model.Case, reveal bool) model.Case {
	if reveal {
		return c
	}
	c.ExpectedFindings = nil
	c.AdditionalFindings = nil
	c.SummaryOfPathology = ""
	return c
}

// mayReveal reports whether the answer fields of a case may be shown to
// the current user.
func (h *Handler) mayReveal(r *http.Request, c model.Case) bool {
	user := model.UserFromContext(r.Context())
	if user == nil {
		return false
	}
	if user.Role == model.UserRoleAdmin || c.Completed {
		return true
	}
	sess := h.sessions.Get(user.ID, c.ID)
	return sess.ShowExpected
}

func (h *Handler) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.store.ListCases()
	if err != nil {
		slog.Error("failed to list cases", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]model.Case, 0, len(cases))
	for _, c := range cases {
		out = append(out, redactCase(c, h.mayReveal(r, c)))
	}
	respondJSON(w, http.StatusOK, out)
}

// loadCase fetches the requested case or writes a 404 and returns nil.
func (h *Handler) loadCase(w http.ResponseWriter, r *http.Request) *model.Case {
	id := chi.URLParam(r, "caseID")
	c, err := h.store.GetCase(id)
	if err != nil {
		slog.Error("failed to get case", "case_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if c == nil {
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "CaseNotFound"))
		return nil
	}
	return c
}

func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	respondJSON(w, http.StatusOK, redactCase(*c, h.mayReveal(r, *c)))
}

func (h *Handler) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var draft model.CaseDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	draft.Normalize()
	if msg := draft.Validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	id, err := h.store.CreateCase(draft)
	if err != nil {
		slog.Error("failed to create case", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c, err := h.store.GetCase(id)
	if err != nil || c == nil {
		respondJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}

	var draft model.CaseDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	draft.Normalize()
	if draft.AccessionNumber == "" {
		draft.AccessionNumber = c.AccessionNumber
	}
	if msg := draft.Validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.UpdateCase(c.ID, draft); err != nil {
		slog.Error("failed to update case", "case_id", c.ID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updated, err := h.store.GetCase(c.ID)
	if err != nil || updated == nil {
		respondJSON(w, http.StatusOK, map[string]string{"id": c.ID})
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	if err := h.store.DeleteCase(c.ID); err != nil {
		slog.Error("failed to delete case", "case_id", c.ID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": c.ID})
}

func (h *Handler) handleSetCompleted(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	var body struct {
		Completed bool `json:"completed"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.store.SetCompleted(c.ID, body.Completed); err != nil {
		slog.Error("failed to set completion", "case_id", c.ID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": c.ID, "completed": body.Completed})
}

func (h *Handler) handleAttemptState(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	user := model.UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.sessions.Get(user.ID, c.ID))
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	user := model.UserFromContext(r.Context())

	var body struct {
		Impression string `json:"impression"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	sess, err := h.sessions.Submit(r.Context(), *c, user.ID, body.Impression)
	if err != nil {
		h.respondWorkflowError(w, r, sess, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleGiveUp(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	user := model.UserFromContext(r.Context())

	sess, err := h.sessions.GiveUp(user.ID, c.ID)
	if err != nil {
		h.respondWorkflowError(w, r, sess, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	c := h.loadCase(w, r)
	if c == nil {
		return
	}
	user := model.UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.sessions.Reset(user.ID, c.ID))
}

// respondWorkflowError maps attempt-workflow errors to HTTP statuses and
// localized messages. Guard failures never mutate session state; a
// transport failure (the default branch) keeps the round open so the
// learner can resubmit.
func (h *Handler) respondWorkflowError(w http.ResponseWriter, r *http.Request, sess grading.Session, err error) {
	ctx := r.Context()
	var status int
	var message string
	switch {
	case errors.Is(err, grading.ErrEmptyImpression):
		status, message = http.StatusBadRequest, appI18n.T(ctx, "EmptyImpression")
	case errors.Is(err, grading.ErrNotConfigured):
		status, message = http.StatusServiceUnavailable, appI18n.T(ctx, "MissingAPIKey")
	case errors.Is(err, grading.ErrNotGradable):
		status, message = http.StatusUnprocessableEntity, appI18n.T(ctx, "CaseNotGradable")
	case errors.Is(err, grading.ErrGradingInFlight):
		status, message = http.StatusConflict, appI18n.T(ctx, "GradingInFlight")
	case errors.Is(err, grading.ErrCaseResolved):
		status, message = http.StatusConflict, appI18n.T(ctx, "CaseResolved")
	default:
		status, message = http.StatusBadGateway, sess.Feedback
		if message == "" {
			message = err.Error()
		}
	}
	respondJSON(w, status, map[string]any{"error": message, "session": sess})
}
