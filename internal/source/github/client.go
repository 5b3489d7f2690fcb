// Package github pulls markdown documents out of a GitHub repository
// for bulk ingestion.
package github

import (
	"os"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limit handling.
type Client struct {
	*github.Client
}

// NewClient creates a GitHub client that waits out primary and
// secondary rate limits. GITHUB_TOKEN, when set, authenticates the
// client for the higher request quota.
func NewClient() (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
