package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscapesWorkspace is returned when a relative path would resolve
// outside the workspace root. This is a security boundary: a crafted path
// must never write outside the intended directory tree.
var ErrPathEscapesWorkspace = errors.New("path escapes workspace root")

// SafeJoin joins rel onto root, rejecting absolute paths and any path whose
// normalized form leaves the root. The returned path is absolute.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathEscapesWorkspace)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(filepath.ToSlash(rel), "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathEscapesWorkspace, rel)
	}

	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesWorkspace, rel)
	}

	joined := filepath.Join(root, cleaned)

	// Joining and re-checking guards against separator tricks the prefix
	// test above could miss.
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	joinedAbs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if joinedAbs != rootAbs && !strings.HasPrefix(joinedAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesWorkspace, rel)
	}
	return joinedAbs, nil
}
