package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const userAgent = "clouddrive-go/0.1"

// Client is an HTTP client for the CloudDrive API. It handles request
// construction, bearer authentication, and error classification. The
// credential is an opaque input handed to each call — the client never
// stores or inspects it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// newRequestID generates the X-Request-ID header value for each request.
	// Tests override this for deterministic IDs.
	newRequestID func() string
}

// NewClient creates a CloudDrive API client.
// baseURL is the service root, e.g. "http://localhost:4000".
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		newRequestID: uuid.NewString,
	}
}

// do executes a single HTTP request against the API. The path is appended to
// the client's base URL. cred, when non-empty, is sent as a bearer token.
// Non-2xx responses are drained, closed, and returned as *APIError; the
// caller owns the response body on success.
func (c *Client) do(
	ctx context.Context, method, path, contentType string, body io.Reader, cred string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	reqID := c.newRequestID()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("User-Agent", userAgent)

	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", reqID),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Warn("request rejected",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", reqID),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
		Message:    serverMessage(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// decodeInto decodes the response body as JSON into dst and closes it.
func decodeInto(resp *http.Response, dst any, what string) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("api: decoding %s response: %w", what, err)
	}

	return nil
}

// drainAndClose discards any response body so the connection can be reused.
func drainAndClose(resp *http.Response) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("api: draining response body: %w", err)
	}

	return nil
}
