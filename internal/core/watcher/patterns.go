package watcher

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// pattern is an exclude glob. Patterns with a slash match the path below the
// watched root; the others match the base name.
type pattern struct {
	g        glob.Glob
	relative bool
}

// cleanPattern normalises separators and strips a leading "./", so that
// "./tests\golden" and "tests/golden" are the same pattern.
func cleanPattern(s string) string {
	s = path.Clean(strings.ReplaceAll(strings.TrimSpace(s), `\`, "/"))
	if s == "." {
		return ""
	}
	return strings.TrimPrefix(s, "./")
}

func compilePatterns(raw []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raw))
	for _, r := range raw {
		clean := cleanPattern(r)
		if clean == "" {
			continue
		}
		g, err := glob.Compile(clean, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", r, err)
		}
		out = append(out, pattern{g: g, relative: strings.Contains(clean, "/")})
	}
	return out, nil
}

// within reports whether p is root or lies below it.
func within(p, root string) bool {
	p, root = filepath.ToSlash(p), filepath.ToSlash(root)
	if root == "" {
		return false
	}
	trimmed := strings.TrimSuffix(root, "/")
	return p == root || p == trimmed || strings.HasPrefix(p, trimmed+"/")
}

func matchAny(patterns []pattern, root, p string) bool {
	base := filepath.Base(p)
	var rel string
	if root != "" {
		if r, err := filepath.Rel(root, p); err == nil && r != "." {
			rel = filepath.ToSlash(r)
		}
	}
	for _, pat := range patterns {
		switch {
		case pat.relative:
			if rel != "" && pat.g.Match(rel) {
				return true
			}
		case pat.g.Match(base):
			return true
		}
	}
	return false
}
