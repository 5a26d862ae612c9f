package access

import "strings"

// Boundary is the chroot-style folder ceiling: a single configured root
// path beyond which no resource is reachable, read or write.
type Boundary struct {
	root string
}

// NewBoundary builds a Boundary from a configured path, normalizing it:
// a leading "/" is ensured and a trailing "/" trimmed, except for the
// literal root. Empty input means unrestricted ("/").
func NewBoundary(path string) Boundary {
	return Boundary{root: NormalizePath(path)}
}

// Root returns the normalized root path.
func (b Boundary) Root() string { return b.root }

// Contains reports whether the candidate folder path lies inside the
// permitted subtree. The prefix match is per path segment: with root
// "/mcp", "/mcp/a" is inside but "/mcpx" is not. Candidates are
// normalized before comparison.
func (b Boundary) Contains(candidate string) bool {
	if b.root == "/" {
		return true
	}
	c := NormalizePath(candidate)
	if c == b.root {
		return true
	}
	return strings.HasPrefix(c, b.root+"/")
}

// NormalizePath normalizes a folder path: ensures a leading "/", trims a
// trailing "/" except for the root itself.
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}
