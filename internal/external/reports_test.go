package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencydesk/internal/types"
)

func testSchedule() types.ReportSchedule {
	return types.ReportSchedule{
		ID:           "sched-1",
		ClientID:     "client-1",
		Recipients:   []string{"owner@example.com"},
		EmailSubject: "Monthly performance report",
	}
}

func TestGenerateAndSend(t *testing.T) {
	var generateCalls, sendCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/v1/reports/generate":
			generateCalls.Add(1)
			var req generateReportRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "client-1", req.ClientID)
			assert.Equal(t, "sched-1", req.ScheduleID)
			json.NewEncoder(w).Encode(generateReportResponse{ReportID: "report-42"})

		case "/v1/reports/report-42/send":
			sendCalls.Add(1)
			var req sendReportRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"owner@example.com"}, req.Recipients)
			assert.Equal(t, "Monthly performance report", req.Subject)
			w.WriteHeader(http.StatusAccepted)

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewReportServiceClient(ReportServiceConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
	})

	reportID, err := client.GenerateAndSend(context.Background(), testSchedule())
	require.NoError(t, err)
	assert.Equal(t, "report-42", reportID)
	assert.Equal(t, int32(1), generateCalls.Load())
	assert.Equal(t, int32(1), sendCalls.Load())
}

func TestGenerateAndSendUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Non-retryable client error: surfaced immediately, no backoff.
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"unknown client"}`))
	}))
	defer srv.Close()

	client := NewReportServiceClient(ReportServiceConfig{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})

	_, err := client.GenerateAndSend(context.Background(), testSchedule())

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamReportService, appErr.Code)
}

func TestGenerateRejectsEmptyReportID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(generateReportResponse{})
	}))
	defer srv.Close()

	client := NewReportServiceClient(ReportServiceConfig{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})

	_, err := client.Generate(context.Background(), testSchedule())

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamReportService, appErr.Code)
}

func TestSendRequiresRecipients(t *testing.T) {
	client := NewReportServiceClient(ReportServiceConfig{BaseURL: "http://unused"})

	err := client.Send(context.Background(), "report-1", nil, "")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationEmptyRecipients, appErr.Code)
}

func TestBaseClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	base := NewBaseClient(srv.Client(), "test", RetryPolicy{
		MaxRetries: 3,
		MinWait:    1,
		MaxWait:    1,
	}, "agencydesk/test", WithSleepFunc(func(time.Duration) {}))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := base.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}
