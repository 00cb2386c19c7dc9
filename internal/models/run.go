package models

import "time"

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records an audit trail of each fetch-filter-rank execution.
type Run struct {
	ID             string     `json:"id"`
	Status         RunStatus  `json:"status"`
	Category       string     `json:"category"`
	Days           int        `json:"days"`
	PapersFetched  int        `json:"papers_fetched"`
	PapersMatched  int        `json:"papers_matched"`
	PapersRelevant int        `json:"papers_relevant"`
	RankingModel   string     `json:"ranking_model"`
	Report         string     `json:"report,omitempty"`
	ReportPath     string     `json:"report_path,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
