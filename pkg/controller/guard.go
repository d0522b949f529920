package controller

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Guard matches URLs of pages where the host refuses script injection.
type Guard struct {
	patterns []string
	globs    []glob.Glob
}

// NewGuard compiles the restricted page patterns.
func NewGuard(patterns []string) (*Guard, error) {
	g := &Guard{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid restricted pattern %q: %w", pattern, err)
		}
		g.patterns = append(g.patterns, pattern)
		g.globs = append(g.globs, compiled)
	}
	return g, nil
}

// Restricted returns the first pattern matching url.
func (g *Guard) Restricted(url string) (string, bool) {
	if g == nil {
		return "", false
	}
	for i, compiled := range g.globs {
		if compiled.Match(url) {
			return g.patterns[i], true
		}
	}
	return "", false
}

// Patterns returns the compiled patterns in order.
func (g *Guard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}
