package ags

import "strings"

// Normalize maps a line-item URL to its scores endpoint.
//
//	.../scores...              unchanged
//	.../lineitem[?q]           .../lineitem/scores[?q]
//	.../lineitems/<id>[/..][?q] .../lineitems/<id>/scores[?q]
//
// A "#fragment" is kept after the query like the query itself. Anything
// else is returned unchanged. Matching is per path segment, so
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(u string) string {
	path, query := u, ""
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		path, query = u[:i], u[i:]
	}

	segs := pathSegments(path)
	for _, s := range segs {
		if s == "scores" {
			return u
		}
	}
	for _, s := range segs {
		if s == "lineitem" {
			return strings.TrimRight(path, "/") + "/scores" + query
		}
	}
	for i, s := range segs {
		if s == "lineitems" && i+1 < len(segs) && segs[i+1] != "" {
			prefix := path[:segmentEnd(path, s, i)]
			return prefix + "/" + segs[i+1] + "/scores" + query
		}
	}
	return u
}

// pathSegments splits the path portion of a URL, skipping any
// "scheme://host" prefix.
func pathSegments(path string) []string {
	return strings.Split(stripAuthority(path), "/")
}

func stripAuthority(path string) string {
	if i := strings.Index(path, "://"); i >= 0 {
		rest := path[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
		return ""
	}
	return path
}

// segmentEnd returns the offset in path just past the n-th segment, which
// must equal seg.
func segmentEnd(path, seg string, n int) int {
	off := len(path) - len(stripAuthority(path))
	segs := strings.Split(path[off:], "/")
	for i := 0; i < n; i++ {
		off += len(segs[i]) + 1
	}
	return off + len(seg)
}
