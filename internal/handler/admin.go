package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/sebadog/radsim/internal/i18n"
	"github.com/sebadog/radsim/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password required")
		return
	}
	role := model.UserRole(body.Role)
	if role != model.UserRoleLearner && role != model.UserRoleAdmin {
		respondError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	displayName := body.DisplayName
	if displayName == "" {
		displayName = body.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     body.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create user: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// handleSetUserPassword resets another user's password. Unlike the
// self-service change, no current password is required; the admin role
// check on the route is the gate.
func (h *Handler) handleSetUserPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(body.Password) < minPasswordLen {
		respondError(w, http.StatusBadRequest,
			appI18n.Td(r.Context(), "PasswordTooShort", map[string]any{"Min": minPasswordLen}))
		return
	}

	user, err := h.store.GetUserByID(id)
	if err != nil {
		slog.Error("failed to get user", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateUserPassword(id, string(hash)); err != nil {
		slog.Error("failed to update password", "user_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin reset user password", "user_id", id)
	respondJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// handleImportCases accepts a JSON file of cases. A file whose content
// hash matches a previous import is skipped, so re-uploading the same
// seed file cannot duplicate cases.
func (h *Handler) handleImportCases(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("cases_file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if storedHash == hash {
		respondJSON(w, http.StatusOK, map[string]any{
			"imported": 0,
			"message":  appI18n.T(r.Context(), "ImportDuplicate"),
		})
		return
	}

	var imports []model.CaseImport
	if err := json.Unmarshal(data, &imports); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	imported := 0
	for i, ci := range imports {
		draft := ci.Draft()
		draft.Normalize()
		if msg := draft.Validate(); msg != "" {
			respondError(w, http.StatusBadRequest,
				"case "+strconv.Itoa(i+1)+": "+msg)
			return
		}
		if _, err := h.store.CreateCase(draft); err != nil {
			slog.Error("failed to insert case", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to insert case: "+err.Error())
			return
		}
		imported++
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("imported cases via admin", "filename", header.Filename, "count", imported)
	respondJSON(w, http.StatusOK, map[string]any{
		"imported": imported,
		"message":  appI18n.Td(r.Context(), "ImportSuccess", map[string]any{"Count": imported}),
	})
}
