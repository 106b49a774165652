// Package transport is the JSON/REST adapter between the device client and the
// GameThrive service.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// SDKVersion is reported to the service with every request and registration.
const SDKVersion = "go-010301"

// Config holds the adapter settings.
type Config struct {
	BaseURL    string
	AppID      string
	RESTAPIKey string
	Timeout    time.Duration
}

// Client is the HTTP implementation of push.Requester.
type Client struct {
	baseURL    string
	appID      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ push.Requester = (*Client)(nil)

// NewClient creates a new adapter. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/") + "/",
		appID:      cfg.AppID,
		apiKey:     cfg.RESTAPIKey,
		httpClient: httpClient,
		logger:     logger.With("component", "Transport"),
	}
}

// errorResponse is the service's error envelope. Both shapes have been seen in the wild.
type errorResponse struct {
	Errors  []string `json:"errors"`
	Message string   `json:"message"`
	Error   string   `json:"error"`
}

func (e errorResponse) text() string {
	switch {
	case len(e.Errors) > 0:
		return strings.Join(e.Errors, "; ")
	case e.Message != "":
		return e.Message
	default:
		return e.Error
	}
}

// Do performs an HTTP request. The returned error, if any, is a *push.Error.
func (c *Client) Do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	url := c.baseURL + strings.TrimPrefix(path, "/")
	log := c.logger.With("method", method, "path", path)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &push.Error{Kind: push.KindSerialization, Message: "failed to marshal request", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &push.Error{Kind: push.KindNetwork, Message: "failed to create request", Err: err}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-GameThrive-App-Id", c.appID)
	req.Header.Set("X-GameThrive-SDK", SDKVersion)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Request failed", "err", err)
		return nil, &push.Error{Kind: push.KindNetwork, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &push.Error{Kind: push.KindNetwork, Message: "failed to read response", Err: err}
	}

	// 1. Non-2xx: keep whatever the service told us
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.text() != "" {
			msg = errResp.text()
		}
		log.Warn("Service rejected request", "status", resp.StatusCode, "message", msg)
		return nil, &push.Error{
			Kind:       push.KindService,
			StatusCode: resp.StatusCode,
			Message:    msg,
			RawBody:    string(respBody),
		}
	}

	// 2. 2xx: decode; unknown fields are kept in the map and ignored by callers
	result := map[string]any{}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &push.Error{
			Kind:       push.KindSerialization,
			StatusCode: resp.StatusCode,
			Message:    "failed to parse response",
			RawBody:    string(respBody),
			Err:        err,
		}
	}

	log.Debug("Request succeeded", "status", resp.StatusCode)
	return result, nil
}

// String reports the target of the adapter.
func (c *Client) String() string {
	return fmt.Sprintf("transport(%s)", c.baseURL)
}
