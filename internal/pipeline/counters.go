package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/pkg/contracts/events"
)

// Counters is the uniform counter set every job stage reports:
// scanned / upserted / skipped / failed. Safe for concurrent workers.
type Counters struct {
	Scanned  atomic.Int64
	Upserted atomic.Int64
	Skipped  atomic.Int64
	Failed   atomic.Int64
}

func (c *Counters) Report(stage string, started time.Time) events.StageReport {
	return events.StageReport{
		Stage:      stage,
		Scanned:    int(c.Scanned.Load()),
		Upserted:   int(c.Upserted.Load()),
		Skipped:    int(c.Skipped.Load()),
		Failed:     int(c.Failed.Load()),
		DurationMS: time.Since(started).Milliseconds(),
	}
}

func sumRun(run *events.PipelineRun) {
	for _, s := range run.Stages {
		run.Scanned += s.Scanned
		run.Upserted += s.Upserted
		run.Skipped += s.Skipped
		run.Failed += s.Failed
	}
}
