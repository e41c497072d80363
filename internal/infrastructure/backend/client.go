package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/ports"
)

const flagPrefix = "upload-status/"

// Client talks to the OCR upload backend.
type Client struct {
	endpoint  string
	flagsBase string
	http      *http.Client
}

var _ ports.UploadBackend = (*Client)(nil)
var _ ports.CompletionFlags = (*Client)(nil)

// NewClient creates a reusable HTTP client. flagsBase is where the backend
// publishes completion flags; empty disables flag lookups.
func NewClient(endpoint, flagsBase string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		flagsBase: strings.TrimRight(flagsBase, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Files []domain.UploadFile `json:"files"`
	JobID string              `json:"jobId"`
}

// Submit uploads one batch. A 202 answer means processing continues in the
// background and Status must be polled.
func (c *Client) Submit(ctx context.Context, jobID string, files []domain.UploadFile) (domain.Submission, error) {
	payload := submitRequest{Files: make([]domain.UploadFile, len(files)), JobID: jobID}
	for i, f := range files {
		payload.Files[i] = domain.UploadFile{Data: f.Data, Type: f.Type}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Submission{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.Submission{Accepted: true}, nil
	case resp.StatusCode != http.StatusOK:
		return domain.Submission{}, statusError(resp)
	}

	var result domain.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Submission{}, fmt.Errorf("decode response: %w", err)
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return domain.Submission{Result: &result}, nil
}

// Status reads the deferred processing state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (domain.StatusReport, error) {
	var report domain.StatusReport
	u := c.endpoint + "/status/" + url.PathEscape(jobID)
	found, err := c.getJSON(ctx, u, &report)
	if err != nil {
		return domain.StatusReport{}, err
	}
	if !found {
		return domain.StatusReport{}, &domain.BackendError{Status: http.StatusNotFound, Message: "unknown job " + jobID}
	}
	return report, nil
}

// CompletionFlag returns the result the backend stored for jobID, or nil
// when there is none.
func (c *Client) CompletionFlag(ctx context.Context, jobID string) (*domain.UploadResult, error) {
	if c.flagsBase == "" {
		return nil, nil
	}
	var result domain.UploadResult
	found, err := c.getJSON(ctx, c.flagURL(jobID), &result)
	if err != nil || !found {
		return nil, err
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return &result, nil
}

// DeleteCompletionFlag removes a consumed flag. Missing flags are ignored.
func (c *Client) DeleteCompletionFlag(ctx context.Context, jobID string) error {
	if c.flagsBase == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.flagURL(jobID), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode/100 == 2 {
		return nil
	}
	return statusError(resp)
}

func (c *Client) flagURL(jobID string) string {
	return c.flagsBase + "/" + flagPrefix + url.PathEscape(jobID) + ".json"
}

// getJSON decodes a 200 body into v. It reports false on 404.
func (c *Client) getJSON(ctx context.Context, u string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Message != "":
			msg = body.Message
		}
	}
	return &domain.BackendError{Status: resp.StatusCode, Message: msg}
}
