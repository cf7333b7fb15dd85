package model

import "time"

// ProgressExport is the top-level JSON structure for the progress report
// produced by the export subcommand.
type ProgressExport struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	NumCases     int          `json:"num_cases"`
	NumCompleted int          `json:"num_completed"`
	Cases        []CaseResult `json:"cases"`
}

// CaseResult holds one case's completion state for export.
type CaseResult struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	AccessionNumber string     `json:"accession_number"`
	FindingCount    int        `json:"finding_count"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
