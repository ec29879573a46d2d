// Package vpath parses the flat "container[/key]" path strings used by the
// file browser into their container, key and leaf name.
package vpath

import (
	"regexp"
	"strings"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// Separator delimits key segments.
const Separator = "/"

var pathPattern = regexp.MustCompile(`^[\w.-]+(/.*)?$`)

// Path is a parsed virtual path.
type Path struct {
	Container string
	Key       string
	// Name is the last non-empty segment of Key, empty when Key is empty.
	Name string
}

// Parse splits path on its first separator. Everything before it is the
// container, everything after is the key, which may be empty.
func Parse(path string) (Path, error) {
	if !pathPattern.MatchString(path) {
		return Path{}, fserr.New(fserr.InvalidPath, "parse", path, "expected container[/key]")
	}

	container, key, _ := strings.Cut(path, Separator)
	return Path{
		Container: container,
		Key:       key,
		Name:      leafName(key),
	}, nil
}

func leafName(key string) string {
	segments := strings.Split(key, Separator)
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// Join builds a path string from a container and key.
func Join(container, key string) string {
	if key == "" {
		return container
	}
	return container + Separator + key
}

// IsRoot reports whether p addresses the container itself, with or without
// trailing separators.
func (p Path) IsRoot() bool {
	return p.FileKey() == ""
}

// IsDirKey reports whether the key carries a trailing separator.
func (p Path) IsDirKey() bool {
	return strings.HasSuffix(p.Key, Separator)
}

// DirPrefix returns the listing prefix for p treated as a directory: the key
// with exactly one trailing separator, or "" for the container root.
func (p Path) DirPrefix() string {
	key := p.FileKey()
	if key == "" {
		return ""
	}
	return key + Separator
}

// FileKey returns the key without trailing separators.
func (p Path) FileKey() string {
	return strings.TrimRight(p.Key, Separator)
}

func (p Path) String() string {
	return Join(p.Container, p.Key)
}
