package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/sebadog/radsim/internal/i18n"
	"github.com/sebadog/radsim/internal/model"
	"github.com/sebadog/radsim/internal/store"
)

func TestRedactCase(t *testing.T) {
	c := model.Case{
		ID:                 "case-1",
		Title:              "Chest trauma",
		ClinicalInfo:       "Fall from height",
		ExpectedFindings:   []string{"Pneumothorax"},
		AdditionalFindings: []string{"Subcutaneous emphysema"},
		SummaryOfPathology: "Traumatic pneumothorax",
		Images:             []string{"img1.png"},
	}

	t.Run("hidden", func(t *testing.T) {
		got := redactCase(c, false)
		if got.ExpectedFindings != nil {
			t.Errorf("ExpectedFindings = %v, want hidden", got.ExpectedFindings)
		}
		if got.AdditionalFindings != nil {
			t.Errorf("AdditionalFindings = %v, want hidden", got.AdditionalFindings)
		}
		if got.SummaryOfPathology != "" {
			t.Errorf("SummaryOfPathology = %q, want hidden", got.SummaryOfPathology)
		}
		// Non-answer fields survive redaction.
		if got.Title != c.Title || got.ClinicalInfo != c.ClinicalInfo || len(got.Images) != 1 {
			t.Errorf("redaction dropped non-answer fields: %+v", got)
		}
	})

	t.Run("revealed", func(t *testing.T) {
		got := redactCase(c, true)
		if len(got.ExpectedFindings) != 1 || got.SummaryOfPathology == "" {
			t.Errorf("revealed case should keep answer fields: %+v", got)
		}
	})

	t.Run("original untouched", func(t *testing.T) {
		_ = redactCase(c, false)
		if len(c.ExpectedFindings) != 1 {
			t.Error("redactCase must not mutate its input")
		}
	})
}

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	h, err := New(s, nil, model.AppConfig{Lang: "en"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, s
}

func requestWithURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleMeEchoesCSRFToken(t *testing.T) {
	h, err := New(nil, nil, model.AppConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := model.ContextWithUser(req.Context(), &model.User{ID: 1, Username: "resident1", Role: model.UserRoleLearner})
	ctx = model.ContextWithCSRFToken(ctx, "tok-abc")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.handleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(csrfHeaderName); got != "tok-abc" {
		t.Errorf("%s header = %q, want the context token", csrfHeaderName, got)
	}
	if !strings.Contains(rec.Body.String(), `"resident1"`) {
		t.Errorf("body = %q, want the user payload", rec.Body.String())
	}
}

func TestHandleSetUserPassword(t *testing.T) {
	h, s := newTestHandler(t)

	oldHash, err := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	id, err := s.CreateUser(model.User{
		Username:     "resident1",
		PasswordHash: string(oldHash),
		Role:         model.UserRoleLearner,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	userID := strconv.FormatInt(id, 10)

	t.Run("resets without current password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/users/"+userID+"/password",
			strings.NewReader(`{"password":"newpassword"}`))
		req = requestWithURLParam(req, "userID", userID)
		rec := httptest.NewRecorder()
		h.handleSetUserPassword(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		u, err := s.GetUserByID(id)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("newpassword")); err != nil {
			t.Error("stored hash should match the new password")
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/users/"+userID+"/password",
			strings.NewReader(`{"password":"short"}`))
		req = requestWithURLParam(req, "userID", userID)
		rec := httptest.NewRecorder()
		h.handleSetUserPassword(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/users/9999/password",
			strings.NewReader(`{"password":"newpassword"}`))
		req = requestWithURLParam(req, "userID", "9999")
		rec := httptest.NewRecorder()
		h.handleSetUserPassword(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
