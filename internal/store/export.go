package store

import (
	"fmt"
	"time"

	"github.com/sebadog/radsim/internal/model"
)

// ExportProgress builds a completion report over all cases.
func (s *Store) ExportProgress() (model.ProgressExport, error) {
	cases, err := s.ListCases()
	if err != nil {
		return model.ProgressExport{}, fmt.Errorf("list cases: %w", err)
	}

	export := model.ProgressExport{
		GeneratedAt: time.Now(),
		NumCases:    len(cases),
	}
	for _, c := range cases {
		if c.Completed {
			export.NumCompleted++
		}
		export.Cases = append(export.Cases, model.CaseResult{
			ID:              c.ID,
			Title:           c.Title,
			AccessionNumber: c.AccessionNumber,
			FindingCount:    len(c.ExpectedFindings),
			Completed:       c.Completed,
			CompletedAt:     c.CompletedAt,
			CreatedAt:       c.CreatedAt,
		})
	}
	return export, nil
}
