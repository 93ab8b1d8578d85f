package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one scoring run over an uploaded batch.
type Run struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Policy      string     `json:"policy"`
	GroupBy     string     `json:"group_by"`
	ContentHash string     `json:"content_hash"`
	Records     int        `json:"records"`
	Status      RunStatus  `json:"status"`
	Result      *RunResult `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Units    int     `json:"units"`
	MeanESG  float64 `json:"mean_esg"`
	CacheHit bool    `json:"cache_hit"`
	Error    string  `json:"error,omitempty"`
}
