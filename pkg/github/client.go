// Package github is the pull request client. It wraps go-github with token
// authentication, tracks the API rate limit from response headers and turns
// API failures into *APIError values that keep GitHub's own wording.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/holon-run/docsagent/pkg/log"
)

// Client opens pull requests on GitHub.
type Client struct {
	gh   *github.Client
	rate *RateLimitTracker
}

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes NewClient.
type Option func(*clientOptions)

// WithBaseURL points the client at a different API root, such as a GitHub
// Enterprise server or a test server.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = u }
}

// WithHTTPClient sets the HTTP client whose transport carries the
// authenticated requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// NewClient builds a client authenticated with token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("github token is required")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	if o.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", o.baseURL, err)
		}
		gh.BaseURL = base
	}

	return &Client{gh: gh, rate: NewRateLimitTracker()}, nil
}

// RateLimit returns the last rate limit reported by the API.
func (c *Client) RateLimit() RateLimitStatus { return c.rate.GetStatus() }

// Repository is the subset of repository metadata the preflight checks use.
type Repository struct {
	FullName      string
	DefaultBranch string
}

// GetRepository fetches repository metadata, which also proves the token can
// see the repository and refreshes the tracked rate limit.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	if err := c.rate.CheckRateLimit(); err != nil {
		return nil, err
	}
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if resp != nil {
		c.rate.Update(resp.Response)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, fromGitHubError(err))
	}
	return &Repository{FullName: r.GetFullName(), DefaultBranch: r.GetDefaultBranch()}, nil
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// PRInfo is the subset of a created pull request callers care about.
type PRInfo struct {
	Number  int
	URL     string
	HeadRef string
	BaseRef string
	State   string
}

func convertFromGitHubPR(pr *github.PullRequest) *PRInfo {
	info := &PRInfo{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		State:  pr.GetState(),
	}
	if head := pr.GetHead(); head != nil {
		info.HeadRef = head.GetRef()
	}
	if base := pr.GetBase(); base != nil {
		info.BaseRef = base.GetRef()
	}
	return info
}

// OpenPullRequest creates the pull request. There is no lookup for an existing
// one first: GitHub's "already exists" rejection comes back as an *APIError.
func (c *Client) OpenPullRequest(ctx context.Context, owner, repo string, req NewPullRequest) (*PRInfo, error) {
	if err := c.rate.CheckRateLimit(); err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(req.Title),
		Head:  github.Ptr(req.Head),
		Base:  github.Ptr(req.Base),
		Body:  github.Ptr(req.Body),
	})
	if resp != nil {
		c.rate.Update(resp.Response)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request %s -> %s: %w", req.Head, req.Base, fromGitHubError(err))
	}

	info := convertFromGitHubPR(pr)
	if info.URL == "" {
		return nil, fmt.Errorf("pull request created without a URL (number %d)", info.Number)
	}
	status := c.rate.GetStatus()
	log.Debug("pull request created", "url", info.URL, "number", info.Number, "rate_remaining", status.Remaining)
	return info, nil
}

// CreatePullRequest opens a pull request and returns its HTML URL.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, head, base, title, body string) (string, error) {
	info, err := c.OpenPullRequest(ctx, owner, repo, NewPullRequest{Title: title, Head: head, Base: base, Body: body})
	if err != nil {
		return "", err
	}
	return info.URL, nil
}
