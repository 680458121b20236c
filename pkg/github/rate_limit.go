package github

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const defaultRateLimit = 5000

// RateLimitStatus represents the current rate limit status
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Used      int       `json:"used"`
}

// RateLimitTracker tracks rate limit information from GitHub API responses
type RateLimitTracker struct {
	mu    sync.RWMutex
	limit RateLimitStatus
}

// NewRateLimitTracker creates a new rate limit tracker
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		limit: RateLimitStatus{Limit: defaultRateLimit},
	}
}

// Update updates the rate limit status from HTTP response headers
func (r *RateLimitTracker) Update(resp *http.Response) {
	if resp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := headerInt(resp, "X-RateLimit-Limit"); ok {
		r.limit.Limit = v
	}
	if v, ok := headerInt(resp, "X-RateLimit-Remaining"); ok {
		r.limit.Remaining = v
	}
	if v, ok := headerInt(resp, "X-RateLimit-Used"); ok {
		r.limit.Used = v
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			r.limit.Reset = time.Unix(val, 0)
		}
	}
}

func headerInt(resp *http.Response, key string) (int, bool) {
	raw := resp.Header.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

// GetStatus returns a copy of the current rate limit status
func (r *RateLimitTracker) GetStatus() RateLimitStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limit
}

// CheckRateLimit fails fast with an *APIError when the last response reported
// the limit exhausted and the reset is still ahead. It never waits.
func (r *RateLimitTracker) CheckRateLimit() error {
	r.mu.RLock()
	status := r.limit
	r.mu.RUnlock()

	if status.Remaining > 0 || status.Reset.IsZero() || !time.Now().Before(status.Reset) {
		return nil
	}
	return &APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    fmt.Sprintf("rate limit exhausted until %s", status.Reset.UTC().Format(time.RFC3339)),
		RateLimit: &RateLimitInfo{
			Limit:     status.Limit,
			Remaining: status.Remaining,
			Reset:     status.Reset.Unix(),
		},
	}
}
