package git

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/config"
)

// DefaultAuthorName is the commit author name when no other source sets one.
const DefaultAuthorName = "Docs Agent"

// DefaultAuthorEmail is the commit author email when no other source sets one.
const DefaultAuthorEmail = "docs-agent@users.noreply.github.com"

// Author is the identity recorded on commits.
type Author struct {
	Name  string
	Email string
}

// String formats the author as "Name <email>".
func (a Author) String() string {
	return FormatGitAuthor(a.Name, a.Email)
}

// AuthorOptions holds the candidate sources for the commit author.
type AuthorOptions struct {
	// ExplicitName and ExplicitEmail come from configuration and win over everything.
	ExplicitName  string
	ExplicitEmail string

	// EnvName and EnvEmail usually come from GIT_AUTHOR_NAME and GIT_AUTHOR_EMAIL.
	EnvName  string
	EnvEmail string

	// SkipGlobalConfig disables reading the user's global git config.
	SkipGlobalConfig bool
}

// ResolveAuthor picks the commit author with the following priority:
//  1. explicit configuration
//  2. environment variables
//  3. global git config (~/.gitconfig, XDG config), read through go-git
//  4. DefaultAuthorName / DefaultAuthorEmail
//
// Name and email are resolved independently, so a configured name can be
// combined with an email taken from git config.
func ResolveAuthor(opts AuthorOptions) Author {
	a := Author{Name: DefaultAuthorName, Email: DefaultAuthorEmail}

	if !opts.SkipGlobalConfig {
		if cfg, err := config.LoadConfig(config.GlobalScope); err == nil {
			if cfg.User.Name != "" {
				a.Name = cfg.User.Name
			}
			if cfg.User.Email != "" {
				a.Email = cfg.User.Email
			}
		}
	}

	if opts.EnvName != "" {
		a.Name = opts.EnvName
	}
	if opts.EnvEmail != "" {
		a.Email = opts.EnvEmail
	}

	if opts.ExplicitName != "" {
		a.Name = opts.ExplicitName
	}
	if opts.ExplicitEmail != "" {
		a.Email = opts.ExplicitEmail
	}
	return a
}

// AuthorFromEnv is ResolveAuthor fed from GIT_AUTHOR_NAME and GIT_AUTHOR_EMAIL.
func AuthorFromEnv(explicitName, explicitEmail string) Author {
	return ResolveAuthor(AuthorOptions{
		ExplicitName:  explicitName,
		ExplicitEmail: explicitEmail,
		EnvName:       os.Getenv("GIT_AUTHOR_NAME"),
		EnvEmail:      os.Getenv("GIT_AUTHOR_EMAIL"),
	})
}

// FormatGitAuthor formats a git author string in the format "Name <email>".
func FormatGitAuthor(name, email string) string {
	if name == "" && email == "" {
		return ""
	}
	if name == "" {
		return email
	}
	if email == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// ParseGitAuthor parses "Name <email>" into its parts.
func ParseGitAuthor(author string) (name, email string) {
	author = strings.TrimSpace(author)

	left := strings.LastIndex(author, "<")
	right := strings.LastIndex(author, ">")
	if left != -1 && right != -1 && right > left {
		return strings.TrimSpace(author[:left]), strings.TrimSpace(author[left+1 : right])
	}
	return author, ""
}
