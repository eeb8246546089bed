// Package github fetches a user's public repositories from the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devconnector/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

const (
	userAgent    = "devconnector"
	maxBodyBytes = 4 << 20
)

// ErrNotFound is returned when GitHub answers a lookup with a non-5xx error status.
var ErrNotFound = errors.New("github: user not found")

// UpstreamError reports that GitHub could not be reached or kept failing.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "github unavailable: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxTries bounds attempts, the first one included.
	MaxTries uint
}

// Client calls the GitHub REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// ReposURL builds the repository listing URL for username.
func (c *Client) ReposURL(username string) string {
	q := url.Values{}
	q.Set("per_page", "5")
	q.Set("sort", "created:asc")
	if c.cfg.ClientID != "" {
		q.Set("client_id", c.cfg.ClientID)
	}
	if c.cfg.ClientSecret != "" {
		q.Set("client_secret", c.cfg.ClientSecret)
	}
	return fmt.Sprintf("%s/users/%s/repos?%s", c.cfg.BaseURL, url.PathEscape(username), q.Encode())
}

// UserRepos returns the raw JSON body of username's five oldest-first
// repositories. Other non-5xx answers yield ErrNotFound; transport errors and 5xx
// answers are retried and then reported as *UpstreamError.
func (c *Client) UserRepos(ctx context.Context, username string) ([]byte, error) {
	ctx, span := observability.StartClientSpan(ctx, "github", "UserRepos")

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.attempt(ctx, username)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.cfg.MaxTries),
	)

	switch {
	case err == nil:
		observability.GithubRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNotFound):
		observability.GithubRequests.WithLabelValues("not_found").Inc()
	default:
		observability.GithubRequests.WithLabelValues("unavailable").Inc()
		err = &UpstreamError{Err: err}
	}
	observability.EndSpan(span, err)
	return body, err
}

func (c *Client) attempt(ctx context.Context, username string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReposURL(username), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("github answered %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(ErrNotFound)
	}
}
