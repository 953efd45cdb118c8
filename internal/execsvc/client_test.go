package execsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// --- helpers ---

func execServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(baseURL, "test-token", 5*time.Second, nil)
}

// --- CheckStatus ---

func TestCheckStatus_Completed(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-42/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Authorization") != "test-token" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id":"job-42","job_state":"completed","result":[{"id":"G1"}],"finish_time":1708128000}`))
	})

	snap, err := newTestClient(t, ts.URL).CheckStatus(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.JobState != "completed" {
		t.Errorf("unexpected state: %s", snap.JobState)
	}
	if !snap.HasResult() {
		t.Fatal("expected result payload")
	}
	var result []map[string]string
	if err := json.Unmarshal(snap.Result, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result[0]["id"] != "G1" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestCheckStatus_FillsMissingJobID(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job_state":"running"}`))
	})

	snap, err := newTestClient(t, ts.URL).CheckStatus(context.Background(), "job-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.JobID != "job-7" {
		t.Errorf("expected job id to be filled in, got %q", snap.JobID)
	}
	if snap.HasResult() {
		t.Error("running job should not carry a result")
	}
}

func TestCheckStatus_NotFound(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := newTestClient(t, ts.URL).CheckStatus(context.Background(), "nope")
	if !errors.Is(err, apperrors.ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestCheckStatus_ServerErrorCarriesUpstreamMessage(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"scheduler offline"}}`))
	})

	_, err := newTestClient(t, ts.URL).CheckStatus(context.Background(), "job-1")
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Fatalf("expected ErrRemoteService, got %v", err)
	}
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("expected ErrBadResponse cause, got %v", err)
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperrors.Error, got %T", err)
	}
	if appErr.JobID != "job-1" {
		t.Errorf("expected job id on error, got %q", appErr.JobID)
	}
	if got := err.Error(); !strings.Contains(got, "scheduler offline") {
		t.Errorf("expected upstream message in %q", got)
	}
}

func TestCheckStatus_MalformedBody(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := newTestClient(t, ts.URL).CheckStatus(context.Background(), "job-1")
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Errorf("expected ErrRemoteService, got %v", err)
	}
}

func TestCheckStatus_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).CheckStatus(context.Background(), "job-1")
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Fatalf("expected ErrRemoteService, got %v", err)
	}
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable cause, got %v", err)
	}
}

func TestCheckStatus_Timeout(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	c := NewHTTPClient(ts.URL, "", 50*time.Millisecond, nil)
	_, err := c.CheckStatus(context.Background(), "job-1")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

// --- GetParams ---

func TestGetParams(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-42/params" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.JobParams{
			Params:         map[string]any{"genome": "G1"},
			ServiceVersion: "abc123",
		})
	})

	p, err := newTestClient(t, ts.URL).GetParams(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ServiceVersion != "abc123" {
		t.Errorf("unexpected version: %s", p.ServiceVersion)
	}
	if p.Params["genome"] != "G1" {
		t.Errorf("unexpected params: %v", p.Params)
	}
}

func TestGetParams_EmptyParams(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"service_ver":"v1"}`))
	})

	p, err := newTestClient(t, ts.URL).GetParams(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Params == nil {
		t.Error("expected non-nil params map")
	}
}

// --- GetLogs ---

func TestGetLogs_SendsSkipOffset(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-42/logs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("skip_lines"); got != "3" {
			t.Errorf("expected skip_lines=3, got %q", got)
		}
		w.Write([]byte(`{"lines":["d","e"]}`))
	})

	lines, err := newTestClient(t, ts.URL).GetLogs(context.Background(), "job-42", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "d" || lines[1] != "e" {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestGetLogs_NoLines(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	lines, err := newTestClient(t, ts.URL).GetLogs(context.Background(), "job-42", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines == nil || len(lines) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", lines)
	}
}

func TestGetLogs_EscapesJobID(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v1/jobs/a%2Fb/logs" {
			t.Errorf("unexpected escaped path: %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`{"lines":[]}`))
	})

	if _, err := newTestClient(t, ts.URL).GetLogs(context.Background(), "a/b", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- Cancel ---

func TestCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    CancelResult
		wantErr error
	}{
		{"accepted", http.StatusAccepted, CancelAccepted, nil},
		{"ok", http.StatusOK, CancelAccepted, nil},
		{"not implemented", http.StatusNotImplemented, CancelUnsupported, nil},
		{"conflict", http.StatusConflict, CancelUnsupported, nil},
		{"unknown job", http.StatusNotFound, CancelUnsupported, apperrors.ErrUnknownJob},
		{"server error", http.StatusBadGateway, CancelUnsupported, apperrors.ErrRemoteService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				w.WriteHeader(tt.status)
			})

			got, err := newTestClient(t, ts.URL).Cancel(context.Background(), "job-1")
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// --- Ready ---

func TestReady(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	if err := newTestClient(t, ts.URL+"/").Ready(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReady_NotReady(t *testing.T) {
	ts := execServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := newTestClient(t, ts.URL).Ready(context.Background())
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Errorf("expected ErrRemoteService, got %v", err)
	}
}
