// Package inference is the client for the upstream queue-style generation
// API. The studio backend proxies all upstream traffic through it so the
// browser never handles upstream auth or CORS.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Terminal and transitional queue states.
const (
	StatusQueued     = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// ErrInvalidKey indicates the configured API key was rejected upstream.
var ErrInvalidKey = errors.New("api key rejected")

// MediaItem is one generated asset reference in a result payload.
type MediaItem struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Result is the terminal payload of a generation request.
type Result struct {
	Images []MediaItem `json:"images,omitempty"`
	Video  *MediaItem  `json:"video,omitempty"`
	Seed   json.Number `json:"seed,omitempty"`
}

// MediaURLs flattens the result into the list of asset URLs, images first.
func (r *Result) MediaURLs() []string {
	var urls []string
	for _, img := range r.Images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	if r.Video != nil && r.Video.URL != "" {
		urls = append(urls, r.Video.URL)
	}
	return urls
}

type queueSubmission struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the upstream queue API.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPollInterval overrides the queue polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) { cl.pollInterval = d }
}

// WithRateLimit paces upstream requests.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(limit, burst) }
}

// New creates a Client for the given queue base URL and API key.
func New(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 120 * time.Second},
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits the input to the model endpoint and waits for the
// terminal result, polling the queue as needed.
func (c *Client) Generate(ctx context.Context, endpoint string, input map[string]interface{}) (*Result, error) {
	sub, err := c.submit(ctx, endpoint, input)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("endpoint", endpoint, "request_id", sub.RequestID)
	for {
		status, err := c.status(ctx, sub)
		if err != nil {
			return nil, err
		}
		logger.Info("generation status", "status", status.Status)

		switch status.Status {
		case StatusCompleted:
			return c.result(ctx, sub)
		case StatusFailed:
			if status.Error != "" {
				return nil, fmt.Errorf("generation failed: %s", status.Error)
			}
			return nil, errors.New("generation failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// VerifyKey checks the configured credentials against the upstream without
// submitting work: a probe request that comes back 401/403 means the key is
// bad, anything else means it was accepted.
func (c *Client) VerifyKey(ctx context.Context) error {
	url := c.baseURL + "/fal-ai/flux/dev/requests/00000000-0000-0000-0000-000000000000/status"
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidKey
	}
	return nil
}

func (c *Client) submit(ctx context.Context, endpoint string, input map[string]interface{}) (*queueSubmission, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var sub queueSubmission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	if sub.StatusURL == "" {
		sub.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, strings.TrimLeft(endpoint, "/"), sub.RequestID)
	}
	if sub.ResponseURL == "" {
		sub.ResponseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, strings.TrimLeft(endpoint, "/"), sub.RequestID)
	}
	return &sub, nil
}

func (c *Client) status(ctx context.Context, sub *queueSubmission) (*queueStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, sub.StatusURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var status queueStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func (c *Client) result(ctx context.Context, sub *queueSubmission) (*Result, error) {
	resp, err := c.do(ctx, http.MethodGet, sub.ResponseURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidKey
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
