package jsonpatch

import (
	"strconv"
	"strings"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdtedit"
)

// splitPointer parses an RFC 6901 JSON Pointer into its parent path (every
// segment but the last, as a crdtedit.Path) and the raw last segment
// (left unparsed since it might be the RFC 6902 "-" append marker).
func splitPointer(pointer string) (crdtedit.Path, string, error) {
	segs, err := pointerSegments(pointer)
	if err != nil {
		return nil, "", err
	}
	if len(segs) == 0 {
		return nil, "", common.ErrInvalidIndex{Raw: pointer}
	}
	parent := make(crdtedit.Path, 0, len(segs)-1)
	for _, s := range segs[:len(segs)-1] {
		parent = append(parent, segmentToElement(s))
	}
	return parent, segs[len(segs)-1], nil
}

func pointerSegments(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if pointer[0] != '/' {
		return nil, common.ErrInvalidIndex{Raw: pointer}
	}
	raw := strings.Split(pointer[1:], "/")
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
	}
	return out, nil
}

func segmentToElement(s string) crdtedit.PathElement {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && strconv.Itoa(n) == s {
		return crdtedit.Index(n)
	}
	return crdtedit.Key(s)
}

// fullPath parses pointer into a complete crdtedit.Path (every segment,
// including the last), for ops that address a node directly rather than
// its parent slot (test, str_ins, str_del).
func fullPath(pointer string) (crdtedit.Path, error) {
	segs, err := pointerSegments(pointer)
	if err != nil {
		return nil, err
	}
	path := make(crdtedit.Path, len(segs))
	for i, s := range segs {
		path[i] = segmentToElement(s)
	}
	return path, nil
}

// isDescendant reports whether child is path-equal to or nested under
// parent, using their raw pointer strings (RFC 6902 "move" cycle check).
func isDescendant(parent, child string) bool {
	if parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}
