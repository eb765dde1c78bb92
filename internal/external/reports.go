package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agencydesk/internal/types"
)

// ReportServiceClient talks to the report-generation service. Generation
// renders the client's report for the period; send emails the rendered
// report to the schedule's recipients. Both calls ride the BaseClient
// resilience wrapper.
type ReportServiceClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// ReportServiceConfig holds the configuration for creating a
// ReportServiceClient.
type ReportServiceConfig struct {
	BaseURL string
	APIKey  string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewReportServiceClient creates a ReportServiceClient.
func NewReportServiceClient(cfg ReportServiceConfig) *ReportServiceClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ReportServiceClient{
		base:    NewBaseClient(httpClient, "report-service", DefaultRetryPolicy(), "agencydesk/1.0"),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

type generateReportRequest struct {
	ClientID   string `json:"client_id"`
	ScheduleID string `json:"schedule_id"`
}

type generateReportResponse struct {
	ReportID string `json:"report_id"`
}

type sendReportRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject,omitempty"`
}

// Generate renders a report for the schedule's client and returns its ID.
func (c *ReportServiceClient) Generate(ctx context.Context, schedule types.ReportSchedule) (string, error) {
	var out generateReportResponse
	err := c.post(ctx, "/v1/reports/generate", generateReportRequest{
		ClientID:   schedule.ClientID,
		ScheduleID: schedule.ID,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ReportID == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamReportService,
			"report service returned no report id", nil)
	}
	return out.ReportID, nil
}

// Send emails a previously generated report to the given recipients.
func (c *ReportServiceClient) Send(ctx context.Context, reportID string, recipients []string, subject string) error {
	if len(recipients) == 0 {
		return types.NewAppError(types.ErrCodeValidationEmptyRecipients,
			"report send requires at least one recipient", nil)
	}
	return c.post(ctx, fmt.Sprintf("/v1/reports/%s/send", reportID), sendReportRequest{
		Recipients: recipients,
		Subject:    subject,
	}, nil)
}

// GenerateAndSend renders the schedule's report and emails it in one call
// path. This is the entry point the report runner uses.
func (c *ReportServiceClient) GenerateAndSend(ctx context.Context, schedule types.ReportSchedule) (string, error) {
	reportID, err := c.Generate(ctx, schedule)
	if err != nil {
		return "", err
	}
	if err := c.Send(ctx, reportID, schedule.Recipients, schedule.EmailSubject); err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "report generated and sent",
		"schedule_id", schedule.ID,
		"report_id", reportID,
		"recipients", len(schedule.Recipients),
	)
	return reportID, nil
}

// post issues a JSON POST and decodes a 2xx body into out when out is
// non-nil. Non-2xx responses become upstream AppErrors with the response
// body captured for diagnosis.
func (c *ReportServiceClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to encode report service request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build report service request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamReportService,
			fmt.Sprintf("report service returned %d", resp.StatusCode), nil,
			map[string]any{"path": path, "body": string(snippet)})
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamReportService,
				"failed to decode report service response", err)
		}
	}
	return nil
}
