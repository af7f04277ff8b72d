package progress

import (
	"time"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
)

// The step a poll response moves the client to is decided by an explicit
// table rather than ad-hoc status switching. Transitions are forward-only:
// Next never returns a step earlier than the current one.
type transition struct {
	from   scan.Step
	status scan.Status
	when   func(elapsed time.Duration, t scan.StepTable) bool
	to     scan.Step
}

// elapsedPast returns a condition that is true once total elapsed time has
// passed frac of the summed average durations of everything before target.
func elapsedPast(target scan.Step, frac float64) func(time.Duration, scan.StepTable) bool {
	return func(elapsed time.Duration, t scan.StepTable) bool {
		threshold := time.Duration(float64(t.ElapsedBefore(target)) * frac)
		return elapsed > threshold
	}
}

var transitions = []transition{
	{from: scan.StepUploading, status: scan.StatusUploading, to: scan.StepUploading},
	{from: scan.StepUploading, status: scan.StatusProcessing, to: scan.StepAnalyzing},
	// A coarse "processing" status carries no step granularity, so the
	// analyzing->generating->formatting walk is inferred from elapsed time
	// against the step table.
	{from: scan.StepAnalyzing, status: scan.StatusProcessing, when: elapsedPast(scan.StepGenerating, 0.9), to: scan.StepGenerating},
	{from: scan.StepGenerating, status: scan.StatusProcessing, when: elapsedPast(scan.StepFormatting, 0.9), to: scan.StepFormatting},
}

// Next maps the current client step plus an authoritative server status to
// the next step. Unknown combinations leave the step unchanged.
func Next(current scan.Step, status scan.Status, elapsed time.Duration, table scan.StepTable) scan.Step {
	switch status {
	case scan.StatusCompleted:
		return scan.StepCompleted
	case scan.StatusFailed, scan.StatusNotFound:
		return scan.StepFailed
	}
	if current.Terminal() {
		return current
	}
	for _, tr := range transitions {
		if tr.from != current || tr.status != status {
			continue
		}
		if tr.when != nil && !tr.when(elapsed, table) {
			continue
		}
		if tr.to > current {
			return tr.to
		}
		return current
	}
	return current
}
