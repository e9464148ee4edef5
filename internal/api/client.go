// Package api is the HTTP client for the remote disease-detection and chat
// backend. It exposes the two endpoints the app consumes and normalizes
// their error shapes into a single typed error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "greenguard/pkg/logx"
)

// Config tunes the client.
type Config struct {
	BaseURL string
	// Timeout bounds a single request; image analysis can be slow.
	Timeout time.Duration
	// RatePerSec paces outbound calls. 0 means 2/s.
	RatePerSec int
}

// Error is a failure reported by the backend or the transport layer. The
// message is already the human-readable text to surface: a server-provided
// error field when present, otherwise the HTTP status description.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return "api: " + e.Message
}

// PredictResult is the payload of a successful image analysis.
type PredictResult struct {
	Status         string  `json:"status"`
	Disease        string  `json:"disease"`
	Explanation    string  `json:"explanation"`
	Confidence     float64 `json:"confidence"`
	CropType       string  `json:"crop_type"`
	CropConfidence float64 `json:"crop_confidence"`
}

// ContextMessage is one prior transcript entry sent along with a chat turn.
type ContextMessage struct {
	Type    string `json:"type"` // "user" | "bot"
	Content string `json:"content"`
}

// Client talks to the backend. Safe for concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Predict uploads an image for disease analysis via POST /api/predict.
// The image travels as the single multipart field "image".
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (*PredictResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling predict endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading predict response: %w", err)
	}
	c.log.Debug("predict call finished",
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)))

	// The backend reports failures both as non-2xx and as 2xx payloads with
	// status != "success"; normalize both into *Error.
	var out PredictResult
	if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil && out.Status == "success" && resp.StatusCode < 300 {
		return &out, nil
	}
	return nil, c.payloadError(raw, resp)
}

type chatRequest struct {
	Message string           `json:"message"`
	Context []ContextMessage `json:"context"`
}

type chatResponse struct {
	Message string `json:"message"`
	IsError bool   `json:"error"`
}

// Chat sends one conversational turn via POST /api/chat, carrying the prior
// transcript as context. A payload with error=true becomes an *Error.
func (c *Client) Chat(ctx context.Context, message string, history []ContextMessage) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if history == nil {
		history = []ContextMessage{}
	}

	payload, err := json.Marshal(chatRequest{Message: message, Context: history})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	c.log.Debug("chat call finished",
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)))

	var out chatResponse
	if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil && !out.IsError && resp.StatusCode < 300 {
		return out.Message, nil
	}
	if out.IsError && out.Message != "" {
		return "", &Error{StatusCode: resp.StatusCode, Message: out.Message}
	}
	return "", c.payloadError(raw, resp)
}

// payloadError extracts the best available message: the server's error
// field when present, otherwise the HTTP status description.
func (c *Client) payloadError(raw []byte, resp *http.Response) *Error {
	var body struct {
		ErrText string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.ErrText != "" {
		return &Error{StatusCode: resp.StatusCode, Message: body.ErrText}
	}
	return &Error{StatusCode: resp.StatusCode, Message: resp.Status}
}
