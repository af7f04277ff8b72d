package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
	"github.com/yungbote/winescan-backend/internal/services"
)

type fakeAnalysis struct {
	startID  string
	startErr error
	view     *scan.JobView
}

func (f *fakeAnalysis) StartJob(context.Context, services.StartJobRequest) (string, error) {
	return f.startID, f.startErr
}

func (f *fakeAnalysis) GetJob(_ context.Context, jobID string) *scan.JobView {
	if f.view != nil {
		return f.view
	}
	return &scan.JobView{JobID: jobID, Status: scan.StatusNotFound}
}

func testRouter(analysis services.AnalysisService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewScanHandler(analysis)
	r.POST("/api/scans", h.StartScan)
	r.GET("/api/scans/:id", h.GetScan)
	return r
}

func TestStartScanAccepted(t *testing.T) {
	r := testRouter(&fakeAnalysis{startID: "job-42"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader(`{"image":"aGk=","locale":"en-US"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["jobId"] != "job-42" {
		t.Fatalf("jobId = %q", out["jobId"])
	}
}

func TestStartScanInvalidJSON(t *testing.T) {
	r := testRouter(&fakeAnalysis{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != apierr.CodeInvalidInput {
		t.Fatalf("code = %q", env.Error.Code)
	}
}

func TestStartScanServiceError(t *testing.T) {
	r := testRouter(&fakeAnalysis{
		startErr: apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, context.DeadlineExceeded),
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader(`{"image":""}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetScanMalformedID(t *testing.T) {
	r := testRouter(&fakeAnalysis{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/not-a-uuid", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed id", w.Code)
	}
}

func TestGetScanUnknownJobIs200NotFound(t *testing.T) {
	r := testRouter(&fakeAnalysis{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/7e57d004-2b97-4e7a-b8f1-0b1f0b1f0b1f", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for unknown jobs", w.Code)
	}
	var view scan.JobView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != scan.StatusNotFound {
		t.Fatalf("status = %s, want not_found", view.Status)
	}
}

func TestGetScanCompleted(t *testing.T) {
	r := testRouter(&fakeAnalysis{view: &scan.JobView{
		JobID:  "job-1",
		Status: scan.StatusCompleted,
		Result: &scan.JobResult{
			Kind:    scan.ResultKindSummary,
			Summary: &scan.ResultSummary{WineCount: 2, WineNames: []string{"a", "b"}},
		},
	}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/7e57d004-2b97-4e7a-b8f1-0b1f0b1f0b1f", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view scan.JobView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Result == nil || view.Result.Kind != scan.ResultKindSummary || view.Result.Summary.WineCount != 2 {
		t.Fatalf("result = %+v", view.Result)
	}
}
