package router

import "strings"

// Path is a forward-slash-delimited route path (spec.md §3). The empty path
// and "/" both denote the root.
type Path string

// Normalize returns the canonical form of p: always prefixed with "/", never
// suffixed with "/" (unless it is exactly "/"), with repeated slashes
// collapsed.
func (p Path) Normalize() Path {
	s := string(p)
	if s == "" {
		return "/"
	}
	segs := splitSegments(s)
	if len(segs) == 0 {
		return "/"
	}
	return Path("/" + strings.Join(segs, "/"))
}

// Segments returns the non-empty path components of p, in order. The root
// path returns an empty slice.
func (p Path) Segments() []string {
	return splitSegments(string(p))
}

// splitSegments splits a path string on "/", dropping empty components so
// that "/a//b/" and "a/b" both yield ["a", "b"].
func splitSegments(s string) []string {
	raw := strings.Split(s, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Join appends child's segments to the end of p, returning the normalized
// combined path. Used when mounting a sub-router: all subRouter routes
// become visible as "<path><subPath>" (spec.md §4.1).
func (p Path) Join(child Path) Path {
	segs := append(p.Segments(), child.Segments()...)
	if len(segs) == 0 {
		return "/"
	}
	return Path("/" + strings.Join(segs, "/"))
}

// HasPrefix reports whether p starts with prefix at a segment boundary, so
// that agentAsTool("/research") matches "/research/brave" but not
// "/researchx".
func (p Path) HasPrefix(prefix Path) bool {
	pSegs, prefixSegs := p.Segments(), prefix.Segments()
	if len(prefixSegs) > len(pSegs) {
		return false
	}
	for i, seg := range prefixSegs {
		if pSegs[i] != seg {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (p Path) String() string { return string(p) }
