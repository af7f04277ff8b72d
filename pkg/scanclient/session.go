package scanclient

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/envutil"
	"github.com/yungbote/winescan-backend/internal/progress"
)

type SessionConfig struct {
	PollInterval    time.Duration
	AnimateInterval time.Duration
	TrailFactor     float64
	Table           scan.StepTable

	// OnUpdate, when set, receives a state copy after every change. Called
	// from the session's goroutines; keep it fast.
	OnUpdate func(ProcessingState)
}

// DefaultSessionConfig honors SCAN_POLL_INTERVAL, SCAN_ANIMATE_INTERVAL,
// SCAN_TRAIL_FACTOR and STEP_CONFIG_PATH so deployments can retune the
// polling cadence and step weights without a rebuild.
func DefaultSessionConfig() SessionConfig {
	cfg := SessionConfig{
		PollInterval:    envutil.Duration("SCAN_POLL_INTERVAL", 3000*time.Millisecond),
		AnimateInterval: envutil.Duration("SCAN_ANIMATE_INTERVAL", 500*time.Millisecond),
		TrailFactor:     envutil.Float("SCAN_TRAIL_FACTOR", progress.DefaultTrailFactor),
		Table:           scan.DefaultStepTable(),
	}
	if path := os.Getenv("STEP_CONFIG_PATH"); path != "" {
		if table, err := scan.LoadStepTable(path); err == nil {
			cfg.Table = table
		}
	}
	return cfg
}

// Session runs one scan: it starts the job, then drives two tickers — a
// poll loop that asks the server for authoritative status, and an animation
// loop that advances progress smoothly between polls. Both write the same
// state under one lock, with a merge rule: the animation owns smooth
// progress (monotonic within a step), the poll owns step transitions,
// partial counts and terminal outcomes.
type Session struct {
	log *logger.Logger
	api API
	cfg SessionConfig

	mu     sync.Mutex
	state  ProcessingState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(log *logger.Logger, api API, cfg SessionConfig) (*Session, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if api == nil {
		return nil, fmt.Errorf("api required")
	}
	def := DefaultSessionConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.AnimateInterval <= 0 {
		cfg.AnimateInterval = def.AnimateInterval
	}
	if cfg.TrailFactor <= 0 {
		cfg.TrailFactor = def.TrailFactor
	}
	if cfg.Table.Validate() != nil {
		cfg.Table = def.Table
	}
	return &Session{
		log:   log.With("service", "ScanSession"),
		api:   api,
		cfg:   cfg,
		state: idleState(),
	}, nil
}

// State returns a copy of the current state.
func (s *Session) State() ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start submits the image and begins polling and animating. A session runs
// one scan at a time; starting while one is active is an error.
func (s *Session) Start(ctx context.Context, image, locale string) error {
	s.mu.Lock()
	if s.state.IsProcessing {
		s.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}
	// Claim the session before the network call so a racing Start is
	// rejected before any timers exist; rolled back if the start fails.
	s.state = ProcessingState{IsProcessing: true, CurrentStep: scan.StepUploading}
	s.mu.Unlock()

	jobID, err := s.api.StartScan(ctx, image, locale)
	if err != nil {
		s.mu.Lock()
		s.state = idleState()
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.state = ProcessingState{
		IsProcessing:  true,
		JobID:         jobID,
		CurrentStep:   scan.StepUploading,
		StartTime:     time.Now(),
		StatusMessage: "Uploading your photo",
	}
	snapshot := s.state
	s.mu.Unlock()
	s.notify(snapshot)

	s.wg.Add(2)
	go s.animateLoop(runCtx)
	go s.pollLoop(runCtx)
	return nil
}

// StopAll stops both tickers. Idempotent; state is left as-is so a
// terminal message stays visible.
func (s *Session) StopAll() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Cancel stops the scan and resets the session to idle.
func (s *Session) Cancel() {
	s.StopAll()
	s.mu.Lock()
	s.state = idleState()
	snapshot := s.state
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Session) animateLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.AnimateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.animateTick()
		}
	}
}

func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.pollOnce(ctx) {
				return
			}
		}
	}
}

func (s *Session) animateTick() {
	s.mu.Lock()
	if !s.state.IsProcessing {
		s.mu.Unlock()
		return
	}
	out := progress.Estimate(progress.Input{
		Table:          s.cfg.Table,
		Step:           s.state.CurrentStep,
		Elapsed:        time.Since(s.state.StartTime),
		ProcessedCount: s.state.ProcessedCount,
		TotalCount:     s.state.TotalCount,
		ClientTick:     true,
		TrailFactor:    s.cfg.TrailFactor,
	})
	// Animation never moves the step and never regresses progress.
	if out.Progress > s.state.Progress {
		s.state.Progress = out.Progress
	}
	if out.StepProgress > s.state.StepProgress {
		s.state.StepProgress = out.StepProgress
	}
	s.state.EstimatedTimeRemaining = out.ETASeconds
	snapshot := s.state
	s.mu.Unlock()
	s.notify(snapshot)
}

// pollOnce applies one server answer. Returns true when the session reached
// a terminal state and the poll loop should exit.
func (s *Session) pollOnce(ctx context.Context) bool {
	s.mu.Lock()
	if !s.state.IsProcessing {
		s.mu.Unlock()
		return true
	}
	jobID := s.state.JobID
	s.mu.Unlock()

	view, err := s.api.GetScan(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		s.log.Warn("Poll failed", "job_id", jobID, "error", err)
		s.finish(ProcessingState{
			JobID:         jobID,
			CurrentStep:   scan.StepFailed,
			Progress:      100,
			StepProgress:  100,
			StatusMessage: "could not reach the scan service",
			Error:         err.Error(),
		})
		return true
	}

	s.mu.Lock()
	out := progress.Estimate(progress.Input{
		Table:          s.cfg.Table,
		Step:           s.state.CurrentStep,
		Elapsed:        time.Since(s.state.StartTime),
		ServerStatus:   view.Status,
		ErrorMessage:   view.Error,
		ProcessedCount: view.ProcessedCount,
		TotalCount:     view.TotalCount,
	})

	if !out.Processing {
		jobErr := ""
		if view.Status.TerminalFailure() {
			jobErr = out.Message
		}
		final := ProcessingState{
			JobID:         jobID,
			CurrentStep:   out.Step,
			Progress:      100,
			StepProgress:  100,
			StartTime:     s.state.StartTime,
			StatusMessage: out.Message,
			Error:         jobErr,
			Result:        view.Result,
		}
		s.mu.Unlock()
		s.finish(final)
		return true
	}

	// The poll owns the step and the counts; a step advance resets the
	// in-step progress baseline.
	if out.Step != s.state.CurrentStep {
		s.state.CurrentStep = out.Step
		s.state.StepProgress = out.StepProgress
	} else if out.StepProgress > s.state.StepProgress {
		s.state.StepProgress = out.StepProgress
	}
	if out.Progress > s.state.Progress {
		s.state.Progress = out.Progress
	}
	s.state.ProcessedCount = view.ProcessedCount
	s.state.TotalCount = view.TotalCount
	s.state.StatusMessage = out.Message
	s.state.EstimatedTimeRemaining = out.ETASeconds
	snapshot := s.state
	s.mu.Unlock()
	s.notify(snapshot)
	return false
}

// finish records a terminal state and stops the tickers without waiting on
// them (finish runs inside the poll goroutine).
func (s *Session) finish(final ProcessingState) {
	s.mu.Lock()
	final.IsProcessing = false
	s.state = final
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.notify(final)
}

func (s *Session) notify(state ProcessingState) {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(state)
	}
}
