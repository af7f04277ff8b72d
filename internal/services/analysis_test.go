package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/yungbote/winescan-backend/internal/clients/redisstore"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
)

func testImage() string {
	return base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

func newTestService(t *testing.T, store *fakeStore, ext *fakeExtractor, cfg AnalysisConfig) AnalysisService {
	t.Helper()
	svc, err := NewAnalysisService(
		logger.NewNop(),
		store,
		nil, // no bucket: images stay inline
		nil, // no OCR
		ext,
		&fakeEnricher{snippets: "notes"},
		&fakeSynth{rating: 91},
		cfg,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// waitTerminal polls GetJob until the job leaves the processing states.
func waitTerminal(t *testing.T, svc AnalysisService, jobID string) *scan.JobView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		view := svc.GetJob(context.Background(), jobID)
		if view.Status.Terminal() {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func TestStartJobRejectsMissingImage(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeExtractor{}, AnalysisConfig{})
	jobID, err := svc.StartJob(context.Background(), StartJobRequest{Image: "   "})
	if err == nil {
		t.Fatalf("expected error")
	}
	if apierr.Code(err) != apierr.CodeInvalidInput {
		t.Fatalf("code = %q, want invalid_input", apierr.Code(err))
	}
	if jobID != "" {
		t.Fatalf("no job id may exist for rejected input, got %q", jobID)
	}
}

func TestStartJobRejectsBadBase64(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeExtractor{}, AnalysisConfig{})
	_, err := svc.StartJob(context.Background(), StartJobRequest{Image: "!!!not-base64!!!"})
	if apierr.Code(err) != apierr.CodeInvalidInput {
		t.Fatalf("code = %q, want invalid_input", apierr.Code(err))
	}
}

func TestPipelineCompletesWithThreeWines(t *testing.T) {
	store := newFakeStore()
	ext := &fakeExtractor{wines: []scan.Wine{
		{Name: "Barolo"}, {Name: "Chianti"}, {Name: "Rioja"},
	}}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	jobID, err := svc.StartJob(context.Background(), StartJobRequest{Image: testImage(), Locale: "en-US"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s, want completed (error=%q)", view.Status, view.Error)
	}
	if view.Result == nil || view.Result.Kind != scan.ResultKindFull {
		t.Fatalf("want full result, got %+v", view.Result)
	}
	if got := len(view.Result.Full.Wines); got != 3 {
		t.Fatalf("wines = %d, want 3", got)
	}
	for _, w := range view.Result.Full.Wines {
		if w.Rating != 91 || w.Narrative == "" {
			t.Fatalf("wine not synthesized: %+v", w)
		}
	}
	// Object storage was absent, so the image reference is inline.
	if job := store.snapshot(jobID); job == nil || job.ImageURL != scan.InlineImageURL("image/jpeg") {
		t.Fatalf("image url = %+v", job)
	}
}

func TestPipelineCompletesEmptyOnUnusableExtraction(t *testing.T) {
	store := newFakeStore()
	ext := &fakeExtractor{err: apierr.New(0, apierr.CodeProviderOutput, context.DeadlineExceeded)}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	jobID, err := svc.StartJob(context.Background(), StartJobRequest{Image: testImage()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s, want completed", view.Status)
	}
	if view.Result.Kind != scan.ResultKindFull || len(view.Result.Full.Wines) != 0 {
		t.Fatalf("want empty full result, got %+v", view.Result)
	}
}

func TestPipelineFailsOnAuthError(t *testing.T) {
	store := newFakeStore()
	ext := &fakeExtractor{err: apierr.New(502, apierr.CodeProviderAuth, context.DeadlineExceeded)}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	jobID, _ := svc.StartJob(context.Background(), StartJobRequest{Image: testImage()})
	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusFailed {
		t.Fatalf("status = %s, want failed", view.Status)
	}
	if view.Error == "" {
		t.Fatalf("failed job must carry an error message")
	}
	if view.Result != nil {
		t.Fatalf("failed job must carry no result")
	}
}

func TestSizeBudgetDropsFullResult(t *testing.T) {
	store := newFakeStore()
	ext := &fakeExtractor{wines: []scan.Wine{{Name: "Barolo"}, {Name: "Chianti"}}}
	svc := newTestService(t, store, ext, AnalysisConfig{ResultSizeBudget: 300})

	jobID, _ := svc.StartJob(context.Background(), StartJobRequest{Image: testImage()})
	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s, want completed", view.Status)
	}
	if view.Result.Kind != scan.ResultKindSummary {
		t.Fatalf("kind = %s, want summary when full result exceeds budget", view.Result.Kind)
	}
	if view.Result.Summary.WineCount != 2 || len(view.Result.Summary.WineNames) != 2 {
		t.Fatalf("summary = %+v", view.Result.Summary)
	}
}

func TestTerminalWriteFallsBackToMinimal(t *testing.T) {
	store := newFakeStore()
	// Detailed terminal writes fail; only the minimal document lands.
	store.failPut = func(job *scan.Job) bool {
		return job.Status == scan.StatusCompleted && job.ResultMinimal == nil
	}
	ext := &fakeExtractor{wines: []scan.Wine{{Name: "Barolo"}}}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	jobID, _ := svc.StartJob(context.Background(), StartJobRequest{Image: testImage()})
	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s, want completed", view.Status)
	}
	if view.Result == nil || view.Result.Kind != scan.ResultKindMinimal {
		t.Fatalf("want minimal result, got %+v", view.Result)
	}
	if view.Result.Minimal.WineCount != 1 {
		t.Fatalf("minimal = %+v", view.Result.Minimal)
	}
}

func TestTerminalRecordNotOverwritten(t *testing.T) {
	store := newFakeStore()
	// Every read reports an already-failed record, as if another writer got
	// there first.
	store.getHook = func(id string) (*scan.Job, *redisstore.StorageError) {
		return &scan.Job{ID: id, Status: scan.StatusFailed, Error: "earlier failure"}, nil
	}
	ext := &fakeExtractor{wines: []scan.Wine{{Name: "Barolo"}}}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	if _, err := svc.StartJob(context.Background(), StartJobRequest{Image: testImage()}); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(store.putStatuses()) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	for _, st := range store.putStatuses() {
		if st.Terminal() {
			t.Fatalf("terminal record was overwritten with %s", st)
		}
	}
}

func TestGetJobUnknownID(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeExtractor{}, AnalysisConfig{})
	view := svc.GetJob(context.Background(), "nope")
	if view.Status != scan.StatusNotFound {
		t.Fatalf("status = %s, want not_found", view.Status)
	}
}

func TestGetJobStoreDegraded(t *testing.T) {
	store := newFakeStore()
	store.failGet = true
	svc := newTestService(t, store, &fakeExtractor{}, AnalysisConfig{})
	view := svc.GetJob(context.Background(), "some-id")
	if view.Status != scan.StatusNotFound {
		t.Fatalf("status = %s, want not_found on store failure", view.Status)
	}
}

func TestGetJobCompletedWithoutResultDegrades(t *testing.T) {
	store := newFakeStore()
	store.jobs["j1"] = &scan.Job{ID: "j1", Status: scan.StatusCompleted}
	svc := newTestService(t, store, &fakeExtractor{}, AnalysisConfig{})
	view := svc.GetJob(context.Background(), "j1")
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s", view.Status)
	}
	if view.Result == nil || view.Result.Kind != scan.ResultKindMinimal {
		t.Fatalf("want minimal degradation, got %+v", view.Result)
	}
}

func TestStartJobAcceptsRemoteURL(t *testing.T) {
	store := newFakeStore()
	ext := &fakeExtractor{wines: []scan.Wine{{Name: "Barolo"}}}
	svc := newTestService(t, store, ext, AnalysisConfig{})

	jobID, err := svc.StartJob(context.Background(), StartJobRequest{Image: "https://example.com/list.jpg"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	view := waitTerminal(t, svc, jobID)
	if view.Status != scan.StatusCompleted {
		t.Fatalf("status = %s", view.Status)
	}
	if job := store.snapshot(jobID); job.ImageURL != "https://example.com/list.jpg" {
		t.Fatalf("image url = %q", job.ImageURL)
	}
}
