package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
	"github.com/yungbote/winescan-backend/internal/services"
)

type ScanHandler struct {
	analysis services.AnalysisService
}

func NewScanHandler(analysis services.AnalysisService) *ScanHandler {
	return &ScanHandler{analysis: analysis}
}

type startScanRequest struct {
	Image  string `json:"image"`
	Locale string `json:"locale"`
}

// POST /api/scans
func (h *ScanHandler) StartScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
		return
	}

	jobID, err := h.analysis.StartJob(c.Request.Context(), services.StartJobRequest{
		Image:  req.Image,
		Locale: req.Locale,
	})
	if err != nil {
		RespondAPIError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": scan.StatusUploading})
}

// GET /api/scans/:id
//
// Always 200 with a status document; a missing or expired job reads as
// status not_found rather than an HTTP error, so pollers keep one code path.
func (h *ScanHandler) GetScan(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("invalid job id"))
		return
	}
	RespondOK(c, h.analysis.GetJob(c.Request.Context(), jobID.String()))
}
