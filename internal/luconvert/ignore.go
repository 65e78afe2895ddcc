package luconvert

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFile lists extra patterns, in .gitignore syntax, that Discover
// skips.
const IgnoreFile = ".luignore"

// defaultIgnorePatterns are build and tooling directories that never hold
// sources worth converting.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"bin",
	"obj",
	"dist",
	"build",
	".idea",
	".vscode",
}

// IgnoreFilter matches paths under root against the default patterns and
// the root's .gitignore and .luignore files.
type IgnoreFilter struct {
	root     string
	patterns []gitignore.Pattern
}

// NewIgnoreFilter loads the ignore patterns for root. Missing ignore files
// are skipped.
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	f := &IgnoreFilter{root: root}

	for _, p := range defaultIgnorePatterns {
		f.patterns = append(f.patterns, gitignore.ParsePattern(p, nil))
	}

	for _, name := range []string{".gitignore", IgnoreFile} {
		if err := f.load(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *IgnoreFilter) load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.patterns = append(f.patterns, gitignore.ParsePattern(line, nil))
	}
	return scanner.Err()
}

// ShouldIgnore reports whether path, or any directory above it up to the
// root, is excluded. Later patterns override earlier ones, so a negated
// pattern can re-include a path.
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i <= len(parts); i++ {
		if f.match(parts[:i], i < len(parts)) {
			return true
		}
	}
	return false
}

func (f *IgnoreFilter) match(parts []string, isDir bool) bool {
	ignored := false
	for _, p := range f.patterns {
		switch p.Match(parts, isDir) {
		case gitignore.Exclude:
			ignored = true
		case gitignore.Include:
			ignored = false
		}
	}
	return ignored
}
