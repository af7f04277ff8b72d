package scan

import (
	"strings"
	"time"
)

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// Terminal statuses never change again once written.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TerminalFailure covers every status the client must treat as a dead job.
func (s Status) TerminalFailure() bool {
	return s == StatusFailed || s == StatusNotFound
}

// InlineImagePrefix marks an imageUrl that carries no hosted copy because
// object storage was unavailable at upload time.
const InlineImagePrefix = "inline:"

func InlineImageURL(mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = "image/jpeg"
	}
	return InlineImagePrefix + mime
}

type WineAttributes struct {
	Body      string `json:"body,omitempty"`
	Tannin    string `json:"tannin,omitempty"`
	Acidity   string `json:"acidity,omitempty"`
	Sweetness string `json:"sweetness,omitempty"`
}

type Wine struct {
	Name       string         `json:"name"`
	Producer   string         `json:"producer,omitempty"`
	Vintage    string         `json:"vintage,omitempty"`
	Grape      string         `json:"grape,omitempty"`
	Region     string         `json:"region,omitempty"`
	Rating     int            `json:"rating"`
	Narrative  string         `json:"narrative,omitempty"`
	Attributes WineAttributes `json:"attributes"`
	Snippets   string         `json:"snippets,omitempty"`
}

type ResultFull struct {
	Wines       []Wine    `json:"wines"`
	ImageURL    string    `json:"imageUrl"`
	CompletedAt time.Time `json:"completedAt"`
}

type ResultSummary struct {
	WineCount int      `json:"wineCount"`
	WineNames []string `json:"wineNames"`
	ImageURL  string   `json:"imageUrl"`
}

type ResultMinimal struct {
	WineCount int      `json:"wineCount"`
	WineNames []string `json:"wineNames"`
	Message   string   `json:"message"`
}

// Job is the durable store document, keyed by ID. Written only by the
// orchestrator; read-only to clients.
type Job struct {
	ID            string         `json:"id"`
	Status        Status         `json:"status"`
	ImageURL      string         `json:"imageUrl"`
	Locale        string         `json:"locale"`
	ResultSummary *ResultSummary `json:"resultSummary,omitempty"`
	Result        *ResultFull    `json:"result,omitempty"`
	ResultMinimal *ResultMinimal `json:"resultMinimal,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (j *Job) Terminal() bool {
	return j != nil && j.Status.Terminal()
}

type ResultKind string

const (
	ResultKindFull    ResultKind = "full"
	ResultKindSummary ResultKind = "summary"
	ResultKindMinimal ResultKind = "minimal"
)

// JobResult is the tagged projection handed to clients. Exactly one of the
// three payloads is set, matching Kind.
type JobResult struct {
	Kind    ResultKind     `json:"kind"`
	Full    *ResultFull    `json:"full,omitempty"`
	Summary *ResultSummary `json:"summary,omitempty"`
	Minimal *ResultMinimal `json:"minimal,omitempty"`
}

// ResultView picks the richest projection the record carries.
func (j *Job) ResultView() *JobResult {
	if j == nil {
		return nil
	}
	switch {
	case j.Result != nil:
		return &JobResult{Kind: ResultKindFull, Full: j.Result}
	case j.ResultSummary != nil:
		return &JobResult{Kind: ResultKindSummary, Summary: j.ResultSummary}
	case j.ResultMinimal != nil:
		return &JobResult{Kind: ResultKindMinimal, Minimal: j.ResultMinimal}
	default:
		return nil
	}
}

// JobView is the client-facing answer to a status poll. ProcessedCount and
// TotalCount are live partial counts while the generating stage runs;
// TotalCount == 0 means no signal.
type JobView struct {
	JobID          string     `json:"jobId"`
	Status         Status     `json:"status"`
	Result         *JobResult `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	ProcessedCount int        `json:"processedCount,omitempty"`
	TotalCount     int        `json:"totalCount,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt,omitempty"`
}
