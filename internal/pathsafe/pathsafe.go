// Package pathsafe confines a MANIFEST entry's relative path to a save_dir,
// rejecting anything that would escape it, per spec §3's path-safety
// invariant and §8's path-traversal test.
package pathsafe

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a relative path would resolve outside
// saveDir after normalization.
var ErrTraversal = errors.New("pathsafe: path escapes save_dir")

// Resolve joins relative under saveDir and verifies the normalized result
// is still confined to saveDir. relative must not be absolute and must not
// contain a ".." path component once cleaned.
func Resolve(saveDir, relative string) (string, error) {
	if filepath.IsAbs(relative) {
		return "", ErrTraversal
	}

	cleaned := filepath.Clean(relative)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", ErrTraversal
		}
	}

	absSaveDir, err := filepath.Abs(saveDir)
	if err != nil {
		return "", err
	}

	target := filepath.Join(absSaveDir, cleaned)

	rel, err := filepath.Rel(absSaveDir, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrTraversal
	}

	return target, nil
}
