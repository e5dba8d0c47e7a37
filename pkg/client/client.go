package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/club-registration/internal/models"
)

// Client is a Go SDK for the club-registration API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new club-registration client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is returned for every non-2xx response
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// Counts mirrors the placement totals of a recompute run
type Counts struct {
	Seats      int `json:"seats"`
	Fallback   int `json:"fallback"`
	Waitlisted int `json:"waitlisted"`
	Unplaced   int `json:"unplaced"`
}

// Outcome describes a recompute run
type Outcome struct {
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	RunID       string `json:"runId"`
	Policy      string `json:"policy"`
	Digest      string `json:"digest,omitempty"`
	Submissions int    `json:"submissions"`
	Counts      Counts `json:"counts"`
	DurationMS  int64  `json:"durationMs"`
}

// Report summarizes a results notification batch
type Report struct {
	Success bool `json:"success"`
	Total   int  `json:"total"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Details struct {
		Sent   []string `json:"sent"`
		Failed []struct {
			Student string `json:"student"`
			Reason  string `json:"reason"`
		} `json:"failed"`
		Total int `json:"total"`
	} `json:"details"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit records a registration, replacing any earlier one for the student
func (c *Client) Submit(ctx context.Context, req models.SubmitRequest) (*models.Submission, error) {
	var sub models.Submission
	if err := c.call(ctx, http.MethodPost, "/api/v1/submissions", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissions returns every stored submission
func (c *Client) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	var data struct {
		Submissions []*models.Submission `json:"submissions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/submissions", nil, &data); err != nil {
		return nil, err
	}
	return data.Submissions, nil
}

// DeleteSubmission removes one student's submission
func (c *Client) DeleteSubmission(ctx context.Context, studentName string, grade models.Grade) error {
	path := fmt.Sprintf("/api/v1/submissions/%d/%s", int(grade), url.PathEscape(studentName))
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// ClearSubmissions removes every submission and returns how many were deleted
func (c *Client) ClearSubmissions(ctx context.Context) (int64, error) {
	return c.clear(ctx, "/api/v1/submissions")
}

// ListAssignments returns every stored roster
func (c *Client) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	var data struct {
		Assignments []*models.Assignment `json:"assignments"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/assignments", nil, &data); err != nil {
		return nil, err
	}
	return data.Assignments, nil
}

// OverwriteAssignments replaces stored rosters without running the engine
func (c *Client) OverwriteAssignments(ctx context.Context, clubs map[string]models.OverwriteClub) ([]*models.Assignment, error) {
	var data struct {
		Assignments []*models.Assignment `json:"assignments"`
	}
	req := models.OverwriteRequest{Assignments: clubs}
	if err := c.call(ctx, http.MethodPut, "/api/v1/assignments", req, &data); err != nil {
		return nil, err
	}
	return data.Assignments, nil
}

// ClearAssignments removes every roster
func (c *Client) ClearAssignments(ctx context.Context) (int64, error) {
	return c.clear(ctx, "/api/v1/assignments")
}

// ListWaitlists returns every stored waitlist
func (c *Client) ListWaitlists(ctx context.Context) ([]*models.Waitlist, error) {
	var data struct {
		Waitlists []*models.Waitlist `json:"waitlists"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/waitlists", nil, &data); err != nil {
		return nil, err
	}
	return data.Waitlists, nil
}

// Recompute triggers an assignment run. A failed run returns its Outcome
// together with an *APIError.
func (c *Client) Recompute(ctx context.Context) (*Outcome, error) {
	var out Outcome
	err := c.call(ctx, http.MethodPost, "/api/v1/assignments/recompute", nil, &out)
	if err != nil && out.Status == "" {
		return nil, err
	}
	return &out, err
}

// ListClubs returns the catalog, or only the clubs of grade when it is non-zero
func (c *Client) ListClubs(ctx context.Context, grade models.Grade) ([]models.Club, error) {
	path := "/api/v1/clubs"
	if grade != 0 {
		path += "?grade=" + strconv.Itoa(int(grade))
	}

	var data struct {
		Clubs []models.Club `json:"clubs"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Clubs, nil
}

// SendResults notifies every family of their placement
func (c *Client) SendResults(ctx context.Context) (*Report, error) {
	var report Report
	if err := c.call(ctx, http.MethodPost, "/api/v1/notifications/results", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) clear(ctx context.Context, path string) (int64, error) {
	var data struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.call(ctx, http.MethodDelete, path, nil, &data); err != nil {
		return 0, err
	}
	return data.Deleted, nil
}

// call performs a request and decodes the envelope's data into out.
// Data is decoded even on error responses when the server sends it.
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	status, raw, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 400 {
			return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}

	if status >= 400 || !env.Success {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
