// Package progress turns elapsed time, step weights and optional partial
// item counts into the 0-100 progress value shown to the user. The same
// math runs on the server when mapping status and on the client between
// polls, so Estimate is a pure function of its input: callers supply
// elapsed time, there are no hidden clocks.
package progress

import (
	"time"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
)

// StepCeiling caps visible progress inside a step so a step never appears
// finished before the server confirms the transition.
const StepCeiling = 95.0

// DefaultTrailFactor scales client-side time advancement so the animation
// trails real elapsed time and leaves room for server-confirmed jumps.
const DefaultTrailFactor = 0.8

type Input struct {
	Table scan.StepTable

	// Step is the client's current step; a non-empty ServerStatus may move
	// it forward through the transition table.
	Step    scan.Step
	Elapsed time.Duration

	// ServerStatus is empty on animation ticks.
	ServerStatus scan.Status

	// ErrorMessage short-circuits to the failed terminal output.
	ErrorMessage string

	// Partial counts from multi-wine stages. TotalCount == 0 means no signal.
	ProcessedCount int
	TotalCount     int

	// ClientTick applies the trail factor to time-based estimation.
	ClientTick  bool
	TrailFactor float64
}

type Output struct {
	Step         scan.Step
	Progress     float64
	StepProgress float64
	ETASeconds   float64
	Message      string
	Processing   bool
}

var stepMessages = map[scan.Step]string{
	scan.StepUploading:  "Uploading your photo",
	scan.StepAnalyzing:  "Analyzing the wines in your photo",
	scan.StepGenerating: "Generating recommendations",
	scan.StepFormatting: "Formatting your results",
}

const (
	MessageCompleted   = "Analysis complete"
	MessageFailed      = "Analysis failed"
	MessageJobNotFound = "Job not found or expired"
)

func Estimate(in Input) Output {
	step := in.Step
	if in.ServerStatus != "" {
		step = Next(step, in.ServerStatus, in.Elapsed, in.Table)
	}

	if msg, failed := failureMessage(in); failed {
		return Output{
			Step:         scan.StepFailed,
			Progress:     100,
			StepProgress: 100,
			Message:      msg,
			Processing:   false,
		}
	}

	if step == scan.StepCompleted || in.ServerStatus == scan.StatusCompleted {
		return Output{
			Step:         scan.StepCompleted,
			Progress:     100,
			StepProgress: 100,
			Message:      MessageCompleted,
			Processing:   false,
		}
	}

	cfg := in.Table.Config(step)
	stepElapsed := in.Elapsed - in.Table.ElapsedBefore(step)
	if stepElapsed < 0 {
		stepElapsed = 0
	}
	if in.ClientTick {
		trail := in.TrailFactor
		if trail <= 0 {
			trail = DefaultTrailFactor
		}
		stepElapsed = time.Duration(float64(stepElapsed) * trail)
	}

	stepProgress := 0.0
	if cfg.AvgDuration > 0 {
		stepProgress = StepCeiling * float64(stepElapsed) / float64(cfg.AvgDuration)
	}
	if stepProgress > StepCeiling {
		stepProgress = StepCeiling
	}

	// A real per-item signal beats time-based guessing.
	if in.TotalCount > 0 && (step == scan.StepAnalyzing || step == scan.StepGenerating) {
		byCount := StepCeiling * float64(in.ProcessedCount) / float64(in.TotalCount)
		if byCount > stepProgress {
			stepProgress = byCount
		}
		if stepProgress > StepCeiling {
			stepProgress = StepCeiling
		}
	}

	progress := float64(in.Table.WeightBefore(step)) + float64(cfg.Weight)*stepProgress/100
	if progress > StepCeiling {
		progress = StepCeiling
	}

	return Output{
		Step:         step,
		Progress:     progress,
		StepProgress: stepProgress,
		ETASeconds:   eta(progress, in.Elapsed, in.Table),
		Message:      stepMessages[step],
		Processing:   true,
	}
}

func failureMessage(in Input) (string, bool) {
	switch {
	case in.ServerStatus == scan.StatusNotFound:
		return MessageJobNotFound, true
	case in.ServerStatus == scan.StatusFailed:
		if in.ErrorMessage != "" {
			return in.ErrorMessage, true
		}
		return MessageFailed, true
	case in.ErrorMessage != "":
		return in.ErrorMessage, true
	case in.Step == scan.StepFailed:
		return MessageFailed, true
	}
	return "", false
}

func eta(progress float64, elapsed time.Duration, table scan.StepTable) float64 {
	frac := progress / 100
	var remaining float64
	if frac > 0.1 {
		total := elapsed.Seconds() / frac
		remaining = total - elapsed.Seconds()
	} else {
		remaining = (table.TotalExpected() - elapsed).Seconds()
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
