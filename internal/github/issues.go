// Package github files issues against a GitHub repository over the REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragbot/internal/domain"
)

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	defaultTimeout = 30 * time.Second
)

// ErrMissingConfig is returned before any network call when the tracker
// credentials are incomplete.
var ErrMissingConfig = errors.New("missing GitHub configuration: set token, owner, and repo")

// Client implements domain.IssueFiler for the GitHub issues API.
type Client struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	httpClient *http.Client
}

// Config configures the GitHub client. BaseURL defaults to the public API.
type Config struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Timeout time.Duration
}

// New creates a GitHub client. Incomplete credentials are allowed here:
// they only fail the CreateIssue path, not startup.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type createIssueRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type createIssueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue submits a create-issue request and returns the created issue's
// number and browsable URL.
func (c *Client) CreateIssue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	if c.token == "" || c.owner == "" || c.repo == "" {
		return domain.IssueResult{}, ErrMissingConfig
	}

	payload, err := json.Marshal(createIssueRequest{Title: req.Title, Body: req.Body})
	if err != nil {
		return domain.IssueResult{}, fmt.Errorf("marshal issue: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, c.owner, c.repo)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.IssueResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-GitHub-Api-Version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.IssueResult{}, fmt.Errorf("create issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.IssueResult{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var issue createIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return domain.IssueResult{}, fmt.Errorf("decode response: %w", err)
	}

	return domain.IssueResult{Number: issue.Number, URL: issue.HTMLURL}, nil
}
