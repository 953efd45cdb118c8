// Package execsvc is the HTTP client for the remote execution service that runs jobs.
package execsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// Transport-level causes attached to apperrors.ErrRemoteService failures.
var (
	ErrUnreachable = errors.New("execution service unreachable")
	ErrTimeout     = errors.New("execution service timeout")
	ErrBadResponse = errors.New("execution service returned an unexpected response")
)

// CancelResult reports what the execution service did with a cancel request.
type CancelResult int

const (
	// CancelAccepted means the service accepted the cancellation.
	CancelAccepted CancelResult = iota
	// CancelUnsupported means the job's submission path cannot be cancelled mid-flight.
	CancelUnsupported
)

func (r CancelResult) String() string {
	if r == CancelAccepted {
		return "accepted"
	}
	return "unsupported"
}

// Client is the interface for the remote execution service.
// Every failure is an *apperrors.Error classified as ErrRemoteService or ErrUnknownJob.
type Client interface {
	CheckStatus(ctx context.Context, jobID string) (*models.StateSnapshot, error)
	GetParams(ctx context.Context, jobID string) (*models.JobParams, error)
	// GetLogs returns the log lines after the first skipLines lines.
	GetLogs(ctx context.Context, jobID string, skipLines int) ([]string, error)
	Cancel(ctx context.Context, jobID string) (CancelResult, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the execution service's JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	metrics *observability.Metrics
}

// NewHTTPClient creates a new execution service client. timeout bounds every call.
func NewHTTPClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

func (c *HTTPClient) CheckStatus(ctx context.Context, jobID string) (*models.StateSnapshot, error) {
	var snap models.StateSnapshot
	if err := c.getJSON(ctx, "check_status", jobID, c.jobURL(jobID, "status", nil), &snap); err != nil {
		return nil, err
	}
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	return &snap, nil
}

func (c *HTTPClient) GetParams(ctx context.Context, jobID string) (*models.JobParams, error) {
	var params models.JobParams
	if err := c.getJSON(ctx, "get_params", jobID, c.jobURL(jobID, "params", nil), &params); err != nil {
		return nil, err
	}
	if params.Params == nil {
		params.Params = map[string]any{}
	}
	return &params, nil
}

func (c *HTTPClient) GetLogs(ctx context.Context, jobID string, skipLines int) ([]string, error) {
	q := url.Values{"skip_lines": {strconv.Itoa(skipLines)}}
	var resp logsResponse
	if err := c.getJSON(ctx, "get_logs", jobID, c.jobURL(jobID, "logs", q), &resp); err != nil {
		return nil, err
	}
	if resp.Lines == nil {
		return []string{}, nil
	}
	return resp.Lines, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, jobID string) (CancelResult, error) {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, c.jobURL(jobID, "cancel", nil))
	if err != nil {
		c.record(ctx, "cancel", false, start)
		return CancelUnsupported, apperrors.RemoteService(jobID, "cancel", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		c.record(ctx, "cancel", true, start)
		return CancelAccepted, nil
	case http.StatusNotImplemented, http.StatusMethodNotAllowed, http.StatusConflict:
		c.record(ctx, "cancel", true, start)
		return CancelUnsupported, nil
	case http.StatusNotFound:
		c.record(ctx, "cancel", false, start)
		return CancelUnsupported, apperrors.UnknownJob(jobID)
	default:
		c.record(ctx, "cancel", false, start)
		return CancelUnsupported, apperrors.RemoteService(jobID, "cancel", upstreamError(resp))
	}
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/ready")
	if err != nil {
		return apperrors.RemoteService("", "ready", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.RemoteService("", "ready", upstreamError(resp))
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, jobID, u string, out any) error {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, u)
	if err != nil {
		c.record(ctx, op, false, start)
		return apperrors.RemoteService(jobID, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.record(ctx, op, false, start)
		return apperrors.UnknownJob(jobID)
	}
	if resp.StatusCode != http.StatusOK {
		c.record(ctx, op, false, start)
		return apperrors.RemoteService(jobID, op, upstreamError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.record(ctx, op, false, start)
		return apperrors.RemoteService(jobID, op, fmt.Errorf("%w: decoding body: %v", ErrBadResponse, err))
	}
	c.record(ctx, op, true, start)
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func (c *HTTPClient) jobURL(jobID, action string, q url.Values) string {
	u := fmt.Sprintf("%s/api/v1/jobs/%s/%s", c.baseURL, url.PathEscape(jobID), action)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
}

func (c *HTTPClient) record(ctx context.Context, op string, ok bool, start time.Time) {
	c.metrics.RecordRemoteCall(ctx, op, ok, time.Since(start).Seconds())
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// upstreamError extracts the service's own message from a failed response.
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if msg := e.message(); msg != "" {
			return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, msg)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, text)
	}
	return fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
}

// --- execution service response types ---

type logsResponse struct {
	Lines []string `json:"lines"`
}

type errorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// message accepts both {"error": "text"} and {"error": {"message": "text"}}.
func (e errorResponse) message() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
