package scanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
)

// API is the server surface a session needs. Client is the HTTP
// implementation; tests substitute their own.
type API interface {
	StartScan(ctx context.Context, image, locale string) (string, error)
	GetScan(ctx context.Context, jobID string) (*scan.JobView, error)
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, baseURL string) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	return &Client{
		log:        log.With("service", "ScanClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type startScanResponse struct {
	JobID string `json:"jobId"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) StartScan(ctx context.Context, image, locale string) (string, error) {
	body, err := json.Marshal(map[string]string{"image": image, "locale": locale})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/scans", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierr.New(0, apierr.CodeTransport, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.New(0, apierr.CodeTransport, err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			return "", apierr.New(resp.StatusCode, env.Error.Code, fmt.Errorf("%s", env.Error.Message))
		}
		return "", apierr.New(resp.StatusCode, apierr.CodeInternal, fmt.Errorf("start scan: http %d", resp.StatusCode))
	}

	var out startScanResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apierr.New(0, apierr.CodeTransport, err)
	}
	if out.JobID == "" {
		return "", apierr.New(0, apierr.CodeTransport, fmt.Errorf("start scan: empty job id"))
	}
	return out.JobID, nil
}

func (c *Client) GetScan(ctx context.Context, jobID string) (*scan.JobView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/scans/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.New(0, apierr.CodeTransport, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(0, apierr.CodeTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.New(resp.StatusCode, apierr.CodeTransport, fmt.Errorf("get scan: http %d", resp.StatusCode))
	}

	var view scan.JobView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, apierr.New(0, apierr.CodeTransport, err)
	}
	return &view, nil
}
