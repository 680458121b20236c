// Package pathutil holds the path checks shared by the workspace manager, the
// docs reader and config validation.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrAbsolutePath = errors.New("path must be relative")
	ErrEscapesRoot  = errors.New("path escapes workspace root")
	ErrGitDir       = errors.New("path targets the .git directory")
	ErrSymlink      = errors.New("path is a symbolic link")
)

// IsFilesystemRoot reports whether path points to filesystem root (POSIX or Windows volume root).
func IsFilesystemRoot(path string) bool {
	clean := filepath.Clean(path)
	if clean == string(filepath.Separator) {
		return true
	}
	volume := filepath.VolumeName(clean)
	return volume != "" && clean == volume+string(filepath.Separator)
}

// CleanAbs returns the absolute path, resolving symlinks if possible.
func CleanAbs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Within reports whether candidate is parent or lies below it. Both paths are
// compared lexically after cleaning.
func Within(parent, candidate string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(candidate))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// StrictlyWithin is Within without the equality case.
func StrictlyWithin(parent, candidate string) bool {
	return filepath.Clean(parent) != filepath.Clean(candidate) && Within(parent, candidate)
}

// SafeJoin joins a caller-supplied relative path onto root. It rejects
// absolute paths, paths that climb out of root and paths into .git.
func SafeJoin(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	slashed := filepath.ToSlash(rel)
	if filepath.IsAbs(rel) || strings.HasPrefix(slashed, "/") || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%q: %w", rel, ErrAbsolutePath)
	}
	clean := filepath.Clean(filepath.FromSlash(slashed))
	if clean == "." {
		return "", fmt.Errorf("%q: %w", rel, ErrEmptyPath)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrEscapesRoot)
	}
	first := strings.SplitN(filepath.ToSlash(clean), "/", 2)[0]
	if strings.EqualFold(first, ".git") {
		return "", fmt.Errorf("%q: %w", rel, ErrGitDir)
	}
	full := filepath.Join(root, clean)
	if !StrictlyWithin(root, full) {
		return "", fmt.Errorf("%q: %w", rel, ErrEscapesRoot)
	}
	return full, nil
}

// CheckWritable rejects a write to target that would leave root: target must
// not be a symlink and its nearest existing ancestor must resolve inside
// root. Missing files and directories are fine.
func CheckWritable(root, target string) error {
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s: %w", target, ErrSymlink)
	}
	resolvedRoot, err := CleanAbs(root)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	resolvedDir, err := CleanAbs(dir)
	if err != nil {
		return err
	}
	if !Within(resolvedRoot, resolvedDir) {
		return fmt.Errorf("%s: %w", target, ErrEscapesRoot)
	}
	return nil
}

// ResolveWithin resolves every symlink in target and returns the result if
// it still lies inside root.
func ResolveWithin(root, target string) (string, error) {
	resolvedRoot, err := CleanAbs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", err
	}
	if !StrictlyWithin(resolvedRoot, resolved) {
		return "", fmt.Errorf("%s: %w", target, ErrEscapesRoot)
	}
	return resolved, nil
}
