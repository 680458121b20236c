package github

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// owner/repo and owner/repo:base
	repoRefPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?::([^\s:]+))?$`)
	// https://host/owner/repo(.git) and ssh://git@host/owner/repo(.git)
	repoURLPattern = regexp.MustCompile(`^(?:https?|ssh|git)://(?:[^@/]+@)?([^/]+)/([^/]+)/([^/]+?)(?:\.git)?/?$`)
	// git@host:owner/repo(.git)
	repoSCPPattern = regexp.MustCompile(`^[^@\s]+@([^:\s]+):([^/]+)/([^/]+?)(?:\.git)?$`)
)

// Ref identifies a repository and, optionally, a base branch.
type Ref struct {
	Host       string
	Owner      string
	Repo       string
	BaseBranch string
}

// ParseRef parses a repository reference. Supported formats:
//   - owner/repo
//   - owner/repo:base_branch
//   - https://github.com/owner/repo(.git)
//   - git@github.com:owner/repo(.git)
func ParseRef(target string) (*Ref, error) {
	target = strings.TrimSpace(target)

	if m := repoURLPattern.FindStringSubmatch(target); m != nil {
		return &Ref{Host: m[1], Owner: m[2], Repo: m[3]}, nil
	}
	if m := repoSCPPattern.FindStringSubmatch(target); m != nil {
		return &Ref{Host: m[1], Owner: m[2], Repo: m[3]}, nil
	}
	if m := repoRefPattern.FindStringSubmatch(target); m != nil {
		return &Ref{Owner: m[1], Repo: m[2], BaseBranch: m[3]}, nil
	}
	return nil, fmt.Errorf("invalid repository reference %q (expected owner/repo, owner/repo:base, or a clone URL)", target)
}

// String returns owner/repo, with :base when a base branch is set.
func (r *Ref) String() string {
	if r.BaseBranch != "" {
		return fmt.Sprintf("%s/%s:%s", r.Owner, r.Repo, r.BaseBranch)
	}
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

// IsGitHubHost reports whether the ref points at github.com.
func (r *Ref) IsGitHubHost() bool {
	host := strings.ToLower(r.Host)
	return host == "github.com" || host == "www.github.com"
}
