package models

import "time"

// PipelineSummary is the reporting read model over the application pipeline.
// It is computed by a dedicated projection query, never inline in the
// workflow engine.
type PipelineSummary struct {
	TotalApplications int                       `json:"total_applications"`
	ByStatus          map[ApplicationStatus]int `json:"by_status"`
	Decided           int                       `json:"decided"`
	Approved          int                       `json:"approved"`
	SuccessRate       float64                   `json:"success_rate"`
	GeneratedAt       time.Time                 `json:"generated_at"`
}
