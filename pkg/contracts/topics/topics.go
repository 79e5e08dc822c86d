package topics

const (
	// Pipeline run reports, one message per finished job run.
	PipelineRuns = "pipeline_runs"
)
