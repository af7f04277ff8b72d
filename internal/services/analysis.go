package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/winescan-backend/internal/clients/gcp"
	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/clients/redisstore"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
	"github.com/yungbote/winescan-backend/internal/platform/envutil"
)

// AnalysisService drives one scan job end to end. Every job store write is
// best-effort: a degraded store never aborts the pipeline, the pipeline
// always tries to reach a terminal record.
type AnalysisService interface {
	// StartJob validates the request, creates the job and returns its id.
	// The pipeline continues after return; callers poll GetJob.
	StartJob(ctx context.Context, req StartJobRequest) (string, error)
	// GetJob never surfaces store transport errors: an unreachable store
	// reads as not_found.
	GetJob(ctx context.Context, jobID string) *scan.JobView
}

type StartJobRequest struct {
	// Image is a base64 payload, a data URL, or an https URL.
	Image  string
	Locale string
}

type AnalysisConfig struct {
	Concurrency      int
	ResultSizeBudget int
	JobTimeout       time.Duration
}

func AnalysisConfigFromEnv() AnalysisConfig {
	return AnalysisConfig{
		Concurrency:      envutil.Int("WINE_CONCURRENCY", 4),
		ResultSizeBudget: envutil.Int("RESULT_SIZE_BUDGET", 64*1024),
		JobTimeout:       envutil.Duration("JOB_TIMEOUT", 5*time.Minute),
	}
}

type analysisService struct {
	log       *logger.Logger
	store     redisstore.JobStore
	bucket    gcp.BucketService
	ocr       gcp.Vision
	extractor WineExtractor
	enricher  Enricher
	synth     Synthesizer
	cfg       AnalysisConfig

	mu     sync.Mutex
	counts map[string]*jobCounts
}

// Live per-job partial counts while the generating stage runs. In-memory
// only; a restarted process simply reports no signal.
type jobCounts struct {
	processed int
	total     int
}

func NewAnalysisService(
	log *logger.Logger,
	store redisstore.JobStore,
	bucket gcp.BucketService,
	ocr gcp.Vision,
	extractor WineExtractor,
	enricher Enricher,
	synth Synthesizer,
	cfg AnalysisConfig,
) (AnalysisService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("job store required")
	}
	if extractor == nil || enricher == nil || synth == nil {
		return nil, fmt.Errorf("pipeline services required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ResultSizeBudget <= 0 {
		cfg.ResultSizeBudget = 64 * 1024
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &analysisService{
		log:       log.With("service", "AnalysisService"),
		store:     store,
		bucket:    bucket,
		ocr:       ocr,
		extractor: extractor,
		enricher:  enricher,
		synth:     synth,
		cfg:       cfg,
		counts:    map[string]*jobCounts{},
	}, nil
}

func (s *analysisService) StartJob(ctx context.Context, req StartJobRequest) (string, error) {
	imgBytes, remoteURL, mime, err := parseImageInput(req.Image)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	job := &scan.Job{
		ID:        jobID,
		Status:    scan.StatusUploading,
		Locale:    strings.TrimSpace(req.Locale),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.putBestEffort(ctx, job)

	providerRef := remoteURL
	switch {
	case remoteURL != "":
		job.ImageURL = remoteURL
	default:
		key := imageKey(jobID, mime)
		if s.bucket != nil {
			if upErr := s.bucket.UploadImage(ctx, key, imgBytes, mime); upErr == nil {
				job.ImageURL = s.bucket.PublicURL(key)
			} else {
				s.log.Warn("Image upload degraded to inline", "job_id", jobID, "error", upErr)
			}
		}
		if job.ImageURL == "" {
			job.ImageURL = scan.InlineImageURL(mime)
		}
		providerRef = openai.DataURL(mime, imgBytes)
	}

	go s.run(job, imgBytes, providerRef)

	return jobID, nil
}

// run executes analyzing -> generating -> formatting for one job. It owns
// the job record exclusively; the only shared resource is the store.
func (s *analysisService) run(job *scan.Job, imgBytes []byte, providerRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	defer s.clearCounts(job.ID)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Pipeline panic", "job_id", job.ID, "panic", r)
			s.failJob(ctx, job, "internal error")
		}
	}()

	job.Status = scan.StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	s.putBestEffort(ctx, job)

	// Analyzing: OCR hint is optional, extraction is the real signal.
	var hint string
	if s.ocr != nil && len(imgBytes) > 0 {
		var err error
		hint, err = s.ocr.LabelText(ctx, imgBytes)
		if err != nil {
			s.log.Warn("OCR hint unavailable", "job_id", job.ID, "error", err)
			hint = ""
		}
	}

	wines, err := s.extractor.ExtractWines(ctx, openai.ImageInput{ImageURL: providerRef, Detail: "high"}, hint, job.Locale)
	if err != nil {
		if apierr.Code(err) == apierr.CodeProviderAuth {
			s.failJob(ctx, job, "AI provider rejected credentials")
			return
		}
		// Unusable extraction output is recoverable: the job completes
		// with zero wines instead of failing.
		s.log.Warn("Extraction produced no usable candidates", "job_id", job.ID, "error", err)
		wines = nil
	}
	s.setTotal(job.ID, len(wines))

	// Generating: siblings are independent, fan out per wine.
	enriched := make([]scan.Wine, len(wines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range wines {
		g.Go(func() error {
			w := wines[i]
			snippets, err := s.enricher.WineSnippets(gctx, w, job.Locale)
			if err != nil {
				return err
			}
			done, err := s.synth.Synthesize(gctx, w, snippets, job.Locale)
			if err != nil {
				return err
			}
			enriched[i] = done
			s.incrProcessed(job.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if apierr.Code(err) == apierr.CodeProviderAuth {
			s.failJob(ctx, job, "AI provider rejected credentials")
		} else {
			s.failJob(ctx, job, err.Error())
		}
		return
	}

	// Formatting.
	s.completeJob(ctx, job, enriched)
}

func (s *analysisService) completeJob(ctx context.Context, job *scan.Job, wines []scan.Wine) {
	now := time.Now().UTC()
	names := make([]string, 0, len(wines))
	for _, w := range wines {
		names = append(names, w.Name)
	}

	job.Status = scan.StatusCompleted
	job.UpdatedAt = now
	job.ResultSummary = &scan.ResultSummary{
		WineCount: len(wines),
		WineNames: names,
		ImageURL:  job.ImageURL,
	}
	job.Result = &scan.ResultFull{
		Wines:       wines,
		ImageURL:    job.ImageURL,
		CompletedAt: now,
	}

	// The full result only ships when the serialized document fits the
	// budget; the summary is always cheap enough to keep.
	if raw, err := json.Marshal(job); err != nil || len(raw) > s.cfg.ResultSizeBudget {
		s.log.Info("Full result over size budget, keeping summary only",
			"job_id", job.ID, "wines", len(wines))
		job.Result = nil
	}

	s.writeTerminal(ctx, job)
}

func (s *analysisService) failJob(ctx context.Context, job *scan.Job, msg string) {
	job.Status = scan.StatusFailed
	job.Error = msg
	job.UpdatedAt = time.Now().UTC()
	job.Result = nil
	job.ResultSummary = nil
	job.ResultMinimal = nil
	s.writeTerminal(ctx, job)
}

// writeTerminal refuses to replace an existing terminal record and falls
// back to a names-only minimal document when the detailed write fails.
func (s *analysisService) writeTerminal(ctx context.Context, job *scan.Job) {
	if existing, serr := s.store.Get(ctx, job.ID); serr == nil && existing.Terminal() {
		s.log.Warn("Terminal record already present, not overwriting",
			"job_id", job.ID, "status", existing.Status)
		return
	}

	serr := s.store.Put(ctx, job)
	if serr == nil {
		return
	}
	s.log.Warn("Terminal write failed, retrying with minimal result", "job_id", job.ID, "error", serr)

	minimal := &scan.Job{
		ID:        job.ID,
		Status:    job.Status,
		ImageURL:  job.ImageURL,
		Locale:    job.Locale,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if sum := job.ResultSummary; sum != nil {
		minimal.ResultMinimal = &scan.ResultMinimal{
			WineCount: sum.WineCount,
			WineNames: sum.WineNames,
			Message:   "detailed results unavailable",
		}
	}
	if serr := s.store.Put(ctx, minimal); serr != nil {
		s.log.Error("Minimal terminal write failed, job unreadable by pollers",
			"job_id", job.ID, "error", serr)
	}
}

func (s *analysisService) GetJob(ctx context.Context, jobID string) *scan.JobView {
	view := &scan.JobView{JobID: jobID, Status: scan.StatusNotFound}
	if strings.TrimSpace(jobID) == "" {
		return view
	}

	stored, serr := s.store.Get(ctx, jobID)
	if serr != nil {
		s.log.Warn("Job store read failed", "job_id", jobID, "error", serr)
		return view
	}
	if stored == nil {
		return view
	}

	view.Status = stored.Status
	view.Error = stored.Error
	view.UpdatedAt = stored.UpdatedAt
	view.Result = stored.ResultView()
	if stored.Status == scan.StatusCompleted && view.Result == nil {
		// The main record says completed but every projection is gone;
		// degrade instead of erroring.
		view.Result = &scan.JobResult{
			Kind:    scan.ResultKindMinimal,
			Minimal: &scan.ResultMinimal{Message: "result details unavailable"},
		}
	}
	if processed, total, ok := s.liveCounts(jobID); ok && !stored.Status.Terminal() {
		view.ProcessedCount = processed
		view.TotalCount = total
	}
	return view
}

// ---------- partial count tracking ----------

func (s *analysisService) setTotal(jobID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[jobID] = &jobCounts{total: total}
}

func (s *analysisService) incrProcessed(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.counts[jobID]; c != nil {
		c.processed++
	}
}

func (s *analysisService) liveCounts(jobID string) (processed, total int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts[jobID]
	if c == nil || c.total == 0 {
		return 0, 0, false
	}
	return c.processed, c.total, true
}

func (s *analysisService) clearCounts(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, jobID)
}

// ---------- helpers ----------

func (s *analysisService) putBestEffort(ctx context.Context, job *scan.Job) {
	if serr := s.store.Put(ctx, job); serr != nil {
		s.log.Warn("Job store write failed",
			"job_id", job.ID, "status", job.Status, "code", apierr.CodeStorageDegraded, "error", serr)
	}
}

func parseImageInput(image string) (data []byte, remoteURL string, mime string, err error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, "", "", apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("image data required"))
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return nil, image, "", nil
	}

	mime = "image/jpeg"
	payload := image
	if strings.HasPrefix(image, "data:") {
		rest := strings.TrimPrefix(image, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", "", apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("malformed data URL"))
		}
		if m := strings.TrimSpace(rest[:semi]); m != "" {
			mime = m
		}
		payload = rest[semi+len(";base64,"):]
	}

	raw, decErr := base64.StdEncoding.DecodeString(payload)
	if decErr != nil || len(raw) == 0 {
		return nil, "", "", apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("image payload is not valid base64"))
	}
	return raw, "", mime, nil
}

func imageKey(jobID, mime string) string {
	ext := ".jpg"
	switch mime {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/heic":
		ext = ".heic"
	}
	return "scans/" + jobID + ext
}
