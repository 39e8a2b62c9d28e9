// Package commonroot computes the shared prefix of a report's file
// identifiers so that displayed paths can be shortened.
package commonroot

import "strings"

// Resolve returns the longest prefix shared by every id that ends on a path
// boundary ('/' or '\'). When all ids are identical the id itself is
// returned. Ids with nothing in common, or an empty set, yield "".
func Resolve(ids []string) string {
	if len(ids) == 0 {
		return ""
	}

	prefix := ids[0]
	identical := true
	for _, id := range ids[1:] {
		if id != prefix {
			identical = false
		}
		prefix = commonPrefix(prefix, id)
		if prefix == "" {
			return ""
		}
	}

	if identical {
		return prefix
	}
	return toBoundary(prefix)
}

// Relative strips root from id. If nothing would remain, the last path
// segment of id is returned instead so the display name is never empty.
func Relative(id, root string) string {
	if root == "" || !strings.HasPrefix(id, root) {
		return id
	}
	if rel := id[len(root):]; rel != "" {
		return rel
	}
	if i := strings.LastIndexAny(strings.TrimRight(id, `/\`), `/\`); i >= 0 {
		return strings.TrimRight(id[i+1:], `/\`)
	}
	return id
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func toBoundary(prefix string) string {
	i := strings.LastIndexAny(prefix, `/\`)
	if i < 0 {
		return ""
	}
	return prefix[:i+1]
}
