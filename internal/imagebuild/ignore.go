// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnores never enter a build context. Patterns use doublestar syntax
// against slash-separated paths relative to the context root.
var defaultIgnores = []string{
	".git",
	"**/.env",
	"**/.env.local",
	"**/__pycache__",
	".stackctl-build",
}

// IgnoreSet decides which context paths are left out of the build.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet combines the default ignores, the patterns of the context's own
// .dockerignore and the given host paths (file secrets). Host paths outside
// contextDir are dropped since they cannot enter the context anyway.
// Negated (!) patterns are not supported and are skipped.
func NewIgnoreSet(contextDir string, exclude []string) (*IgnoreSet, error) {
	set := &IgnoreSet{patterns: append([]string(nil), defaultIgnores...)}

	userPatterns, err := readDockerignore(filepath.Join(contextDir, ".dockerignore"))
	if err != nil {
		return nil, err
	}
	set.patterns = append(set.patterns, userPatterns...)

	for _, p := range exclude {
		rel, err := filepath.Rel(contextDir, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		set.patterns = append(set.patterns, escapeMeta(filepath.ToSlash(rel)))
	}

	for _, p := range set.patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return set, nil
}

// Patterns returns the patterns in .dockerignore form.
func (s *IgnoreSet) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// Match reports whether rel (slash-separated, relative to the context root)
// is ignored. A pattern naming a directory ignores everything below it.
func (s *IgnoreSet) Match(rel string) bool {
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p+"/**", rel); ok {
			return true
		}
	}
	return false
}

// Contents renders the set as a .dockerignore file.
func (s *IgnoreSet) Contents() string {
	return "# Generated by stackctl\n" + strings.Join(s.patterns, "\n") + "\n"
}

func readDockerignore(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, strings.Trim(filepath.ToSlash(line), "/"))
	}
	return patterns, scanner.Err()
}

// escapeMeta quotes the doublestar metacharacters in a literal path.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
