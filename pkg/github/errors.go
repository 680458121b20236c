package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
)

// ErrorDetail is one entry of the "errors" array in a GitHub error body.
type ErrorDetail struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

// RateLimitInfo is attached to errors caused by an exhausted rate limit.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     int64
}

// APIError is a failed GitHub API call.
type APIError struct {
	StatusCode       int
	Message          string
	Errors           []ErrorDetail
	DocumentationURL string
	RateLimit        *RateLimitInfo
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GitHub API error (status %d)", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var details []string
	for _, d := range e.Errors {
		switch {
		case d.Message != "":
			details = append(details, d.Message)
		case d.Field != "":
			details = append(details, fmt.Sprintf("%s.%s %s", d.Resource, d.Field, d.Code))
		case d.Code != "":
			details = append(details, d.Code)
		}
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, "; "))
		b.WriteString(")")
	}
	return b.String()
}

// IsRateLimitError reports a 429, or a 403 caused by the primary rate limit.
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return apiErr.StatusCode == http.StatusForbidden && apiErr.RateLimit != nil && apiErr.RateLimit.Remaining == 0
}

// IsNotFoundError reports a 404. GitHub also answers 404 for private
// repositories the token cannot see.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAuthenticationError reports a 401, or a 403 that is not rate limiting.
func IsAuthenticationError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return apiErr.StatusCode == http.StatusForbidden && apiErr.RateLimit == nil
}

// IsAlreadyExistsError reports GitHub's rejection of a duplicate pull request
// for the same head and base.
func IsAlreadyExistsError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, d := range apiErr.Errors {
		if strings.Contains(strings.ToLower(d.Message), "already exists") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "already exists")
}

// Hint returns a short remedy for API failures with a known cause, or "".
func Hint(err error) string {
	switch {
	case IsAlreadyExistsError(err):
		return "a pull request for this branch is already open; push more commits to update it"
	case IsRateLimitError(err):
		return "the GitHub rate limit is exhausted; retry after it resets"
	case IsNotFoundError(err):
		return "check GITHUB_OWNER and GITHUB_REPO, and that the token can see the repository"
	case IsAuthenticationError(err):
		return "check that GITHUB_TOKEN is valid and allowed to open pull requests"
	default:
		return ""
	}
}

// fromGitHubError converts go-github error types into *APIError. Transport
// errors pass through unchanged.
func fromGitHubError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		apiErr := &APIError{
			StatusCode: http.StatusForbidden,
			Message:    rateErr.Message,
			RateLimit: &RateLimitInfo{
				Limit:     rateErr.Rate.Limit,
				Remaining: rateErr.Rate.Remaining,
				Reset:     rateErr.Rate.Reset.Unix(),
			},
		}
		if rateErr.Response != nil {
			apiErr.StatusCode = rateErr.Response.StatusCode
		}
		return apiErr
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		apiErr := &APIError{
			Message:          ghErr.Message,
			DocumentationURL: ghErr.DocumentationURL,
		}
		if ghErr.Response != nil {
			apiErr.StatusCode = ghErr.Response.StatusCode
		}
		for _, e := range ghErr.Errors {
			apiErr.Errors = append(apiErr.Errors, ErrorDetail{
				Resource: e.Resource,
				Field:    e.Field,
				Code:     e.Code,
				Message:  e.Message,
			})
		}
		return apiErr
	}
	return err
}
