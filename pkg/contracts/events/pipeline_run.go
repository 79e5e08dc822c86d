package events

import "time"

// StageReport carries the uniform counter set for one pipeline stage.
type StageReport struct {
	Stage      string `json:"stage"`
	Scanned    int    `json:"scanned"`
	Upserted   int    `json:"upserted"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// PipelineRun is published to the pipeline_runs topic when a job run ends.
// A run is only reported complete after every stage has reported.
type PipelineRun struct {
	RunID        string        `json:"run_id"`
	Job          string        `json:"job"`
	TriggeredBy  string        `json:"triggered_by"` // "schedule" | "api"
	RulesVersion string        `json:"rules_version,omitempty"`
	Stages       []StageReport `json:"stages"`
	Scanned      int           `json:"scanned"`
	Upserted     int           `json:"upserted"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	DurationMS   int64         `json:"duration_ms"`
	Partial      bool          `json:"partial"` // soft deadline or budget cut the run short
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}
