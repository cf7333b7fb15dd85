package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sebadog/radsim/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		accession_number TEXT NOT NULL,
		clinical_info TEXT NOT NULL,
		expected_findings TEXT NOT NULL DEFAULT '[]',
		additional_findings TEXT NOT NULL DEFAULT '[]',
		summary_of_pathology TEXT NOT NULL,
		images TEXT NOT NULL DEFAULT '[]',
		survey_url TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const caseColumns = `id, title, accession_number, clinical_info, expected_findings,
	additional_findings, summary_of_pathology, images, survey_url,
	completed, completed_at, created_at, updated_at`

// CreateCase inserts a new case from a validated draft and returns its ID.
// An accession number is generated when the draft leaves it empty.
func (s *Store) CreateCase(d model.CaseDraft) (string, error) {
	id := uuid.NewString()
	accession := d.AccessionNumber
	if accession == "" {
		accession = generateAccessionNumber()
	}
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO cases (id, title, accession_number, clinical_info, expected_findings,
			additional_findings, summary_of_pathology, images, survey_url,
			completed, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		id, d.Title, accession, d.ClinicalInfo, marshalStrings(d.ExpectedFindings),
		marshalStrings(d.AdditionalFindings), d.SummaryOfPathology,
		marshalStrings(d.Images), d.SurveyURL, now, now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetCase returns a case by ID, or nil if it does not exist.
func (s *Store) GetCase(id string) (*model.Case, error) {
	row := s.db.QueryRow(`SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCases returns all cases, newest first.
func (s *Store) ListCases() ([]model.Case, error) {
	rows, err := s.db.Query(`SELECT ` + caseColumns + ` FROM cases ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cases []model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// UpdateCase overwrites the author-editable fields of a case.
// The completion flag is left untouched; last writer wins.
func (s *Store) UpdateCase(id string, d model.CaseDraft) error {
	res, err := s.db.Exec(
		`UPDATE cases SET title = ?, accession_number = ?, clinical_info = ?,
			expected_findings = ?, additional_findings = ?, summary_of_pathology = ?,
			images = ?, survey_url = ?, updated_at = ?
		 WHERE id = ?`,
		d.Title, d.AccessionNumber, d.ClinicalInfo,
		marshalStrings(d.ExpectedFindings), marshalStrings(d.AdditionalFindings),
		d.SummaryOfPathology, marshalStrings(d.Images), d.SurveyURL, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// DeleteCase removes a case.
func (s *Store) DeleteCase(id string) error {
	res, err := s.db.Exec(`DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// SetCompleted updates a case's completion flag.
func (s *Store) SetCompleted(id string, completed bool) error {
	now := time.Now()
	var completedAt any
	if completed {
		completedAt = now
	}
	res, err := s.db.Exec(
		`UPDATE cases SET completed = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		completed, completedAt, now, id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// CaseCount returns the number of cases in the database.
func (s *Store) CaseCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cases`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*model.Case, error) {
	var c model.Case
	var expected, additional, images string
	err := row.Scan(&c.ID, &c.Title, &c.AccessionNumber, &c.ClinicalInfo, &expected,
		&additional, &c.SummaryOfPathology, &images, &c.SurveyURL,
		&c.Completed, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.ExpectedFindings, err = unmarshalStrings(expected); err != nil {
		return nil, fmt.Errorf("case %s: expected_findings: %w", c.ID, err)
	}
	if c.AdditionalFindings, err = unmarshalStrings(additional); err != nil {
		return nil, fmt.Errorf("case %s: additional_findings: %w", c.ID, err)
	}
	if c.Images, err = unmarshalStrings(images); err != nil {
		return nil, fmt.Errorf("case %s: images: %w", c.ID, err)
	}
	return &c, nil
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("case %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func marshalStrings(in []string) string {
	if len(in) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(in)
	return string(data)
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// generateAccessionNumber produces a short uppercase identifier in the
// style of a RIS accession number.
func generateAccessionNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RS" + strings.ToUpper(raw[:10])
}
