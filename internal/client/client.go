// Package client talks to the render service over HTTP on behalf of a render page.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/render"
	"github.com/JakeFAU/bluemap-render/internal/trigger"
)

// Endpoint paths served by the render API.
const (
	RenderPath  = "/api/blue/v1/render"
	PresetsPath = "/api/blue/v1/presets"
)

const maxResponseBytes = 1 << 20

// TransportError means the request never produced a decodable response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the failure as {"message": "..."} for the error view.
func (e *TransportError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"message": e.Error()})
}

// Client implements trigger.Submitter against a render service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client. A nil httpClient uses one without a timeout; renders can be long.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Submit posts the render request and classifies the response envelope.
func (c *Client) Submit(ctx context.Context, req render.Request) (trigger.Outcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return trigger.Outcome{}, &TransportError{Op: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RenderPath, bytes.NewReader(body))
	if err != nil {
		return trigger.Outcome{}, &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	raw, status, err := c.do(httpReq)
	if err != nil {
		return trigger.Outcome{}, err
	}
	c.logger.Debug("render response",
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return Classify(raw)
}

var errNullResponse = errors.New("response body is null")

// Classify decodes a render response the way the render page does: an object whose
// "type" is "error" fails with its kind, null fails as undecodable, and every other
// JSON value succeeds.
func Classify(raw []byte) (trigger.Outcome, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return trigger.Outcome{}, &TransportError{Op: "decode response", Err: err}
	}
	if value == nil {
		return trigger.Outcome{}, &TransportError{Op: "decode response", Err: errNullResponse}
	}
	obj, ok := value.(map[string]any)
	if !ok || obj["type"] != render.TypeError {
		return trigger.Success(), nil
	}
	var envelope struct {
		Kind json.RawMessage `json:"kind"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return trigger.Outcome{}, &TransportError{Op: "decode response", Err: err}
	}
	detail := envelope.Kind
	if len(detail) == 0 {
		detail = json.RawMessage(bytes.TrimSpace(raw))
	}
	return trigger.Failure(detail), nil
}

// Presets fetches the preset names and the server's default preset.
func (c *Client) Presets(ctx context.Context) ([]string, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PresetsPath, nil)
	if err != nil {
		return nil, "", &TransportError{Op: "build request", Err: err}
	}
	raw, status, err := c.do(httpReq)
	if err != nil {
		return nil, "", err
	}
	var resp render.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &TransportError{Op: "decode response", Err: err}
	}
	if resp.Type != render.TypePresets {
		return nil, "", fmt.Errorf("list presets: unexpected response %q (status %d)", resp.Type, status)
	}
	return resp.Presets, resp.Default, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Op: "read response", Err: err}
	}
	return raw, resp.StatusCode, nil
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
