package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
)

const (
	maxBodyLogLength = 500   // Maximum characters to log for body
	maxBodySaved     = 10000 // Maximum characters stored in api_logs
)

// StatusError is returned for a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, truncateString(e.Body, maxBodyLogLength))
}

type HTTPClient interface {
	// PostJSON posts body as JSON to fullURL and decodes a JSON reply into result when non-nil.
	// itemID tags the stored API log.
	PostJSON(ctx context.Context, fullURL, itemID string, body interface{}, result interface{}) error
}

// APILogSaver interface for saving API logs
type APILogSaver interface {
	Save(ctx context.Context, log *entity.APILog) error
}

type httpClient struct {
	client        *http.Client
	hmacSignature *HMACSignature
	apiLogSaver   APILogSaver
	logger        *zap.Logger
	now           func() time.Time
}

func NewHTTPClient(cfg *config.Config, apiLogSaver APILogSaver, logger *zap.Logger) HTTPClient {
	c := &httpClient{
		client: &http.Client{
			Timeout: cfg.Webhook.Timeout,
		},
		apiLogSaver: apiLogSaver,
		logger:      logger,
		now:         time.Now,
	}

	if cfg.Webhook.ClientSecret != "" {
		c.hmacSignature = NewHMACSignature(cfg.Webhook.ClientID, cfg.Webhook.ClientSecret)
		logger.Info("HTTP Client initialized with HMAC authentication",
			zap.String("client_id", cfg.Webhook.ClientID),
		)
	} else {
		logger.Info("HTTP Client initialized without request signing")
	}

	return c
}

// truncateString truncates a string if it exceeds maxLength
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + fmt.Sprintf("... [truncated, total %d chars]", len(s))
}

// formatHeadersForLog formats HTTP headers for logging in "Header Key=Value" format
func formatHeadersForLog(headers http.Header) string {
	var sb strings.Builder
	for key, values := range headers {
		for _, value := range values {
			if key == "Authorization" {
				value = "[redacted]"
			} else if len(value) > 100 {
				value = value[:100] + "..."
			}
			sb.WriteString(fmt.Sprintf("Header %s=%s\n", key, value))
		}
	}
	return sb.String()
}

// logRequest logs the HTTP request details
func (c *httpClient) logRequest(method, url string, headers http.Header, body []byte) {
	var logBuilder strings.Builder

	logBuilder.WriteString("\n>>> [WEBCLIENT-REQ]\n")
	logBuilder.WriteString(fmt.Sprintf("Method: %s\n", method))
	logBuilder.WriteString(fmt.Sprintf("URL: %s\n", url))
	logBuilder.WriteString(formatHeadersForLog(headers))

	if len(body) > 0 {
		logBuilder.WriteString(fmt.Sprintf("REQUEST BODY: %s\n", truncateString(string(body), maxBodyLogLength)))
	}

	c.logger.Debug(logBuilder.String())
}

// logResponse logs the HTTP response details
func (c *httpClient) logResponse(statusCode int, statusText string, duration time.Duration, headers http.Header, body []byte) {
	var logBuilder strings.Builder

	logBuilder.WriteString("\n>>> [WEBCLIENT-RESPONSE]\n")
	logBuilder.WriteString(fmt.Sprintf("Status: %d %s\n", statusCode, statusText))
	logBuilder.WriteString(fmt.Sprintf("Duration: %s\n", duration))
	logBuilder.WriteString(formatHeadersForLog(headers))
	logBuilder.WriteString(fmt.Sprintf("Body: %s\n", truncateString(string(body), maxBodyLogLength)))

	c.logger.Debug(logBuilder.String())
}

// saveAPILog stores the exchange in the background so the caller is not held up
func (c *httpClient) saveAPILog(method, endpoint, itemID string, requestBody, responseBody []byte, statusCode int, duration time.Duration) {
	if c.apiLogSaver == nil {
		return
	}

	apiLog := &entity.APILog{
		Endpoint:     endpoint,
		Method:       method,
		RequestBody:  truncateString(string(requestBody), maxBodySaved),
		ResponseBody: truncateString(string(responseBody), maxBodySaved),
		StatusCode:   statusCode,
		Duration:     duration.Milliseconds(),
		ItemID:       itemID,
		CreatedAt:    c.now(),
	}

	go func() {
		if err := c.apiLogSaver.Save(context.Background(), apiLog); err != nil {
			c.logger.Warn("Failed to save API log to database",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}
	}()
}

func (c *httpClient) PostJSON(ctx context.Context, fullURL, itemID string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.hmacSignature != nil {
		if err := c.hmacSignature.SignRequest(req, c.now()); err != nil {
			return err
		}
	}

	c.logRequest(http.MethodPost, fullURL, req.Header, jsonBody)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.saveAPILog(http.MethodPost, fullURL, itemID, jsonBody, nil, 0, time.Since(startTime))
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logResponse(resp.StatusCode, resp.Status, duration, resp.Header, respBody)
	c.saveAPILog(http.MethodPost, fullURL, itemID, jsonBody, respBody, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
