// Package preflight verifies that the agent can actually work with its
// configuration before it starts serving conversations.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holon-run/docsagent/pkg/github"
	"github.com/holon-run/docsagent/pkg/log"
)

// CheckLevel represents the severity level of a preflight check
type CheckLevel int

const (
	// LevelError indicates a critical failure that prevents execution
	LevelError CheckLevel = iota
	// LevelWarn indicates a warning that should be addressed but doesn't block execution
	LevelWarn
	// LevelInfo indicates informational output
	LevelInfo
)

func (l CheckLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	default:
		return "ok"
	}
}

// CheckResult represents the result of a single preflight check
type CheckResult struct {
	Name    string
	Level   CheckLevel
	Message string
	Error   error
}

// Check represents a single preflight check
type Check interface {
	Name() string
	Run(ctx context.Context) CheckResult
}

// RemoteProber answers whether a branch exists on a remote.
type RemoteProber interface {
	RemoteBranchExists(ctx context.Context, url, branch string) (bool, error)
}

// RepositoryInspector reads repository metadata from the GitHub API.
// *github.Client implements it.
type RepositoryInspector interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	RateLimit() github.RateLimitStatus
}

// Config configures the preflight checker
type Config struct {
	// BaseDir is the workspace root that must be writable.
	BaseDir string
	// Token is the credential used for git and the GitHub API.
	Token string
	// RepoURL and BaseBranch are probed through Prober when both are set.
	RepoURL    string
	BaseBranch string
	Prober     RemoteProber
	// Owner and Repo are looked up through GitHub when all three are set.
	Owner  string
	Repo   string
	GitHub RepositoryInspector
}

// Checker runs a collection of preflight checks
type Checker struct {
	checks []Check
}

// NewChecker creates a new preflight checker with the given configuration
func NewChecker(cfg Config) *Checker {
	c := &Checker{}
	c.checks = append(c.checks, &BaseDirCheck{Path: cfg.BaseDir})
	c.checks = append(c.checks, &TokenCheck{Token: cfg.Token})
	if cfg.Prober != nil && cfg.RepoURL != "" {
		c.checks = append(c.checks, &RemoteCheck{
			URL:    cfg.RepoURL,
			Branch: cfg.BaseBranch,
			Prober: cfg.Prober,
		})
	}
	if cfg.GitHub != nil && cfg.Owner != "" && cfg.Repo != "" {
		c.checks = append(c.checks, &GitHubCheck{
			Owner:  cfg.Owner,
			Repo:   cfg.Repo,
			Client: cfg.GitHub,
		})
	}
	return c
}

// Results runs every check and returns their results in order.
func (c *Checker) Results(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(c.checks))
	for _, check := range c.checks {
		results = append(results, check.Run(ctx))
	}
	return results
}

// Run executes all registered checks and returns an error if any critical checks fail
func (c *Checker) Run(ctx context.Context) error {
	return Summarize(c.Results(ctx))
}

// Summarize logs results and combines the failed ones into one error.
func Summarize(results []CheckResult) error {
	var errs []string
	warnings := 0
	for _, result := range results {
		switch result.Level {
		case LevelError:
			log.Error("preflight check failed", "check", result.Name, "message", result.Message)
			if result.Error != nil {
				errs = append(errs, fmt.Sprintf("%s: %s: %v", result.Name, result.Message, result.Error))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %s", result.Name, result.Message))
			}
		case LevelWarn:
			warnings++
			log.Warn("preflight check warning", "check", result.Name, "message", result.Message)
		default:
			log.Debug("preflight check", "check", result.Name, "message", result.Message)
		}
	}
	if warnings > 0 {
		log.Info("preflight warnings", "count", warnings)
	}
	if len(errs) > 0 {
		return fmt.Errorf("preflight checks failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BaseDirCheck checks that the workspace root exists, or can be created, and
// is writable.
type BaseDirCheck struct {
	Path string
}

func (c *BaseDirCheck) Name() string {
	return "base-dir"
}

func (c *BaseDirCheck) Run(ctx context.Context) CheckResult {
	if c.Path == "" {
		return CheckResult{Name: c.Name(), Level: LevelError, Message: "no base directory configured"}
	}
	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("failed to resolve base directory: %s", c.Path),
			Error:   err,
		}
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return CheckResult{
				Name:    c.Name(),
				Level:   LevelError,
				Message: fmt.Sprintf("cannot create base directory: %s", absPath),
				Error:   err,
			}
		}
	case err != nil:
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("cannot access base directory: %s", absPath),
			Error:   err,
		}
	case !info.IsDir():
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("base directory is not a directory: %s", absPath),
		}
	}

	f, err := os.CreateTemp(absPath, ".docsagent-write-test-*")
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("base directory is not writable: %s", absPath),
			Error:   err,
		}
	}
	f.Close()
	_ = os.Remove(f.Name())

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("base directory is writable: %s", absPath),
	}
}

var githubTokenPrefixes = []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}

// TokenCheck checks that a token is configured. Tokens in an unrecognized
// format are only a warning since GitHub Enterprise and proxies may issue
// their own.
type TokenCheck struct {
	Token string
}

func (c *TokenCheck) Name() string {
	return "github-token"
}

func (c *TokenCheck) Run(ctx context.Context) CheckResult {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return CheckResult{Name: c.Name(), Level: LevelError, Message: "no GitHub token configured"}
	}
	for _, prefix := range githubTokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "GitHub token configured"}
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Level:   LevelWarn,
		Message: "GitHub token has an unrecognized format",
	}
}

// RemoteCheck checks that the repository is reachable with the configured
// credentials and that its base branch exists.
type RemoteCheck struct {
	URL     string
	Branch  string
	Prober  RemoteProber
	Timeout time.Duration
}

func (c *RemoteCheck) Name() string {
	return "remote"
}

func (c *RemoteCheck) Run(ctx context.Context) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found, err := c.Prober.RemoteBranchExists(checkCtx, c.URL, c.Branch)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "repository is not reachable",
			Error:   err,
		}
	}
	if !found {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("base branch %q does not exist on the remote", c.Branch),
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("repository reachable, base branch %q found", c.Branch),
	}
}

// GitHubCheck checks that the token can see the repository through the API,
// which is what opening pull requests needs, and reports the rate limit.
type GitHubCheck struct {
	Owner   string
	Repo    string
	Client  RepositoryInspector
	Timeout time.Duration
}

func (c *GitHubCheck) Name() string {
	return "github-api"
}

func (c *GitHubCheck) Run(ctx context.Context) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	repo, err := c.Client.GetRepository(checkCtx, c.Owner, c.Repo)
	if err != nil {
		msg := fmt.Sprintf("cannot read %s/%s", c.Owner, c.Repo)
		if hint := github.Hint(err); hint != "" {
			msg += ": " + hint
		}
		return CheckResult{Name: c.Name(), Level: LevelError, Message: msg, Error: err}
	}

	rate := c.Client.RateLimit()
	level := LevelInfo
	if rate.Remaining == 0 {
		level = LevelWarn
	}
	return CheckResult{
		Name:  c.Name(),
		Level: level,
		Message: fmt.Sprintf("repository %s visible, default branch %q, rate limit %d/%d remaining",
			repo.FullName, repo.DefaultBranch, rate.Remaining, rate.Limit),
	}
}
