package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleLearner is a regular learner account.
	UserRoleLearner UserRole = "user"
	// UserRoleAdmin is an administrator account that may author cases.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
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

// Case is a single training scenario: an imaging vignette with the
// findings a learner is expected to identify.
type Case struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	AccessionNumber    string     `json:"accession_number"`
	ClinicalInfo       string     `json:"clinical_info"`
	ExpectedFindings   []string   `json:"expected_findings"`
	AdditionalFindings []string   `json:"additional_findings"`
	SummaryOfPathology string     `json:"summary_of_pathology"`
	Images             []string   `json:"images"`
	SurveyURL          string     `json:"survey_url,omitempty"`
	Completed          bool       `json:"completed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CaseDraft carries the author-editable fields of a case.
// AccessionNumber may be left empty on create; the store generates one.
type CaseDraft struct {
	Title              string   `json:"title"`
	AccessionNumber    string   `json:"accession_number"`
	ClinicalInfo       string   `json:"clinical_info"`
	ExpectedFindings   []string `json:"expected_findings"`
	AdditionalFindings []string `json:"additional_findings"`
	SummaryOfPathology string   `json:"summary_of_pathology"`
	Images             []string `json:"images"`
	SurveyURL          string   `json:"survey_url"`
}

// Normalize trims all text fields and drops empty list entries.
func (d *CaseDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.AccessionNumber = strings.TrimSpace(d.AccessionNumber)
	d.ClinicalInfo = strings.TrimSpace(d.ClinicalInfo)
	d.SummaryOfPathology = strings.TrimSpace(d.SummaryOfPathology)
	d.SurveyURL = strings.TrimSpace(d.SurveyURL)
	d.ExpectedFindings = trimNonEmpty(d.ExpectedFindings)
	d.AdditionalFindings = trimNonEmpty(d.AdditionalFindings)
	d.Images = trimNonEmpty(d.Images)
}

// Validate reports the first problem with a normalized draft, or "".
// A case needs at least one expected finding to be gradable, so that is
// enforced here rather than inside the grading pipeline.
func (d CaseDraft) Validate() string {
	switch {
	case d.Title == "":
		return "title is required"
	case d.ClinicalInfo == "":
		return "clinical_info is required"
	case d.SummaryOfPathology == "":
		return "summary_of_pathology is required"
	case len(d.ExpectedFindings) == 0:
		return "at least one expected finding is required"
	}
	return ""
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CaseImport is used for loading cases from seed JSON files.
type CaseImport struct {
	Title              string   `json:"title"`
	AccessionNumber    string   `json:"accession_number"`
	ClinicalInfo       string   `json:"clinical_info"`
	ExpectedFindings   []string `json:"expected_findings"`
	AdditionalFindings []string `json:"additional_findings"`
	SummaryOfPathology string   `json:"summary_of_pathology"`
	Images             []string `json:"images"`
	SurveyURL          string   `json:"survey_url"`
}

// Draft converts an imported record into a case draft.
func (ci CaseImport) Draft() CaseDraft {
	return CaseDraft{
		Title:              ci.Title,
		AccessionNumber:    ci.AccessionNumber,
		ClinicalInfo:       ci.ClinicalInfo,
		ExpectedFindings:   ci.ExpectedFindings,
		AdditionalFindings: ci.AdditionalFindings,
		SummaryOfPathology: ci.SummaryOfPathology,
		Images:             ci.Images,
		SurveyURL:          ci.SurveyURL,
	}
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Lang           string   // UI message language
	SecureCookies  bool     // Set Secure flag on cookies (disable for local dev)
	AllowedOrigins []string // CORS origins for the browser front-end
}
