package scanclient

import (
	"time"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
)

// ProcessingState is the complete UI-facing snapshot of one scan. Sessions
// hand out copies; mutating a returned state has no effect on the session.
type ProcessingState struct {
	IsProcessing bool
	JobID        string

	CurrentStep  scan.Step
	Progress     float64
	StepProgress float64

	StartTime              time.Time
	EstimatedTimeRemaining float64
	StatusMessage          string
	Error                  string

	// Result is the final job payload, set once the scan completes.
	Result *scan.JobResult

	// Partial counts relayed from the server while multi-wine stages run.
	ProcessedCount int
	TotalCount     int
}

func idleState() ProcessingState {
	return ProcessingState{CurrentStep: scan.StepUploading}
}
