// Package branch maps conversation identifiers to branch names and workspace
// directories. Every function here is pure: the same identifier always yields
// the same branch and path, which lets a restarted process reattach to a clone
// left on disk by a previous run.
package branch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultPrefix is the branch namespace used for conversation branches.
	DefaultPrefix = "docs-agent"

	// SharedCheckoutName is the directory name of the read-only trunk checkout.
	// Altered segments always end in "-<hash>" and unaltered ones never start
	// with "_", so no conversation can ever be mapped onto it.
	SharedCheckoutName = "_main"

	maxSegmentLength = 120
	hashLength       = 10
)

// ErrEmptyConversationID is returned when the identifier is blank.
var ErrEmptyConversationID = errors.New("conversation id is required")

var unsafeSegmentChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Policy derives branch names and workspace paths under one base directory.
type Policy struct {
	BaseDir string
	Prefix  string
}

// NewPolicy returns a Policy rooted at baseDir. An empty prefix falls back to
// DefaultPrefix.
func NewPolicy(baseDir, prefix string) Policy {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Policy{BaseDir: filepath.Clean(baseDir), Prefix: prefix}
}

// BranchName returns "<prefix>/<segment>" for the conversation.
func (p Policy) BranchName(conversationID string) (string, error) {
	seg, err := Segment(conversationID)
	if err != nil {
		return "", err
	}
	return p.Prefix + "/" + seg, nil
}

// WorkspacePath returns the conversation's checkout directory.
func (p Policy) WorkspacePath(conversationID string) (string, error) {
	seg, err := Segment(conversationID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(p.BaseDir, seg)
	rel, err := filepath.Rel(p.BaseDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace path %s escapes base directory %s", path, p.BaseDir)
	}
	return path, nil
}

// SharedPath returns the directory of the shared trunk checkout.
func (p Policy) SharedPath() string {
	return filepath.Join(p.BaseDir, SharedCheckoutName)
}

// Resolve returns both the branch name and the workspace path.
func (p Policy) Resolve(conversationID string) (branchName, path string, err error) {
	if branchName, err = p.BranchName(conversationID); err != nil {
		return "", "", err
	}
	if path, err = p.WorkspacePath(conversationID); err != nil {
		return "", "", err
	}
	return branchName, path, nil
}

// Segment converts a conversation id into a string that is safe both as a
// single path element and as the last component of a git ref.
//
// Ids that are already safe map to themselves. Any id that had to be altered
// becomes "_<sanitized>-<hash of the original>". A safe id never starts with
// "_" (leading punctuation is always trimmed), so an altered segment can
// never equal the segment of another, unaltered id.
func Segment(conversationID string) (string, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return "", ErrEmptyConversationID
	}

	seg := unsafeSegmentChars.ReplaceAllString(id, "_")
	for strings.Contains(seg, "..") {
		seg = strings.ReplaceAll(seg, "..", "_")
	}
	if len(seg) > maxSegmentLength {
		seg = seg[:maxSegmentLength]
	}
	seg = strings.TrimLeft(seg, "._-")
	for {
		trimmed := strings.TrimSuffix(strings.TrimRight(seg, "."), ".lock")
		if trimmed == seg {
			break
		}
		seg = trimmed
	}

	if seg == id {
		return seg, nil
	}
	if seg == "" {
		return "_" + shortHash(id), nil
	}
	return "_" + seg + "-" + shortHash(id), nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLength]
}
