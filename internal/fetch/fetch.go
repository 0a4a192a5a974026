// Package fetch retrieves file bytes from the platform's authenticated
// download endpoints.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ErrHTMLPayload is returned when the endpoint serves an HTML document
// instead of file bytes — typically a login or interstitial page.
var ErrHTMLPayload = errors.New("got HTML instead of file bytes")

// Client downloads files with a bearer credential. The first request is made
// with redirects disabled: the authenticated endpoint may redirect to an
// unauthenticated mirror, and blindly following redirects can leak the token
// or land on an interactive login page. A single redirect is then followed
// explicitly with the same headers.
type Client struct {
	token      string
	noRedirect *http.Client
	follow     *http.Client
}

// New creates a fetch client. A non-positive timeout falls back to 60s.
func New(token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		token: token,
		noRedirect: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		follow: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the raw bytes behind url, or an error for any non-success
// final status or an HTML payload.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, c.noRedirect, url)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		loc := resp.Header.Get("Location")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if loc == "" {
			return nil, fmt.Errorf("redirect (status %d) without Location header", resp.StatusCode)
		}
		// Second hop: the platform's default redirect handling is fine here.
		resp, err = c.get(ctx, c.follow, loc)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed (status %d)", resp.StatusCode)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("%w (url %s)", ErrHTMLPayload, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return resp, nil
}
