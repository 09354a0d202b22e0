package service

import "strings"

const maxNameLength = 255

// validName reports whether a node name is acceptable: non-empty, within
// length, free of path separators and control characters, and not a dot
// path element.
func validName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	for _, r := range name {
		if r < 0x20 {
			return false
		}
	}
	return true
}
