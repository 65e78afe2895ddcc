package luconvert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// DefaultPattern matches every .lu file below the root.
const DefaultPattern = "**/*.lu"

// Discover returns the files under root matching pattern, sorted. Paths
// excluded by the root's ignore files (see IgnoreFilter) are skipped.
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, apperrors.ValidationError(fmt.Sprintf("invalid glob pattern %q", pattern))
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundError(root)
		}
		return nil, fmt.Errorf("checking %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, apperrors.ValidationError(fmt.Sprintf("%s is not a directory", root))
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}

	ignore, err := NewIgnoreFilter(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore files: %w", err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(root, filepath.FromSlash(m))
		if ignore.ShouldIgnore(path) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}
