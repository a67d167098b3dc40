package table

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MatchError reports a glob that did not resolve to exactly one file.
type MatchError struct {
	Dir     string
	Pattern string
	Matches []string
}

func (e *MatchError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no file matching %q in %s", e.Pattern, e.Dir)
	}
	return fmt.Sprintf("%d files match %q in %s, expected one: %s",
		len(e.Matches), e.Pattern, e.Dir, strings.Join(e.Matches, ", "))
}

// IsNoMatch reports whether err is a MatchError with zero matches.
func IsNoMatch(err error) bool {
	me, ok := err.(*MatchError)
	return ok && len(me.Matches) == 0
}

// Glob returns the regular files under dir matching pattern, sorted. A pattern
// starting with "**/" matches the remainder against the base name of every
// file below dir.
func Glob(dir, pattern string) ([]string, error) {
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		return walkMatch(dir, rest)
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	out := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GlobOne resolves pattern to exactly one file.
func GlobOne(dir, pattern string) (string, error) {
	matches, err := Glob(dir, pattern)
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", &MatchError{Dir: dir, Pattern: pattern, Matches: matches}
	}
	return matches[0], nil
}

func walkMatch(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
