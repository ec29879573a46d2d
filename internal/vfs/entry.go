package vfs

import (
	"strings"
	"time"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// EntryKind tells files from directories.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// Entry is one node of the emulated tree. Directory entries have a Key
// ending with the separator, except for the container root whose Key is
// empty.
type Entry struct {
	Container    string    `json:"container"`
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Kind         EntryKind `json:"kind"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
}

// Path returns the entry's path in container/key form.
func (e *Entry) Path() string {
	return vpath.Join(e.Container, strings.TrimSuffix(e.Key, vpath.Separator))
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

func fileEntry(info objectstore.ObjectInfo, name string) Entry {
	return Entry{
		Container:    info.Container,
		Key:          info.Key,
		Name:         name,
		Kind:         KindFile,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}
}

func dirEntry(container, key, name string) Entry {
	return Entry{
		Container: container,
		Key:       key,
		Name:      name,
		Kind:      KindDirectory,
	}
}
