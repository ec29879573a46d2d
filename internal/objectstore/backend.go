// Package objectstore is the typed, credential-gated access layer over a
// flat object store.
//
// A Backend exposes the raw store primitives (list by prefix and delimiter,
// get, put, copy, delete). Client wraps a Backend obtained per call chain
// from a Connector, enforces the credential precondition on every call and
// classifies failures into fserr kinds.
package objectstore

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
)

// Delimiter is the key separator used for directory emulation.
const Delimiter = "/"

// Backend errors. Implementations wrap these so Client can classify them.
var (
	ErrNotExist          = os.ErrNotExist
	ErrContainerNotExist = errors.New("container does not exist")
	ErrAccessDenied      = errors.New("access denied")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Container    string
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Object is an object's info together with its content.
type Object struct {
	ObjectInfo
	Data []byte
}

// ContainerInfo describes a container.
type ContainerInfo struct {
	Name    string
	Created time.Time
}

// ListResult is one level of a delimiter listing. Without a delimiter,
// CommonPrefixes is empty and Items holds every key under the prefix.
type ListResult struct {
	Items          []ObjectInfo
	CommonPrefixes []string
}

// Backend is the set of primitives a store must offer. There is no rename
// and no multi-object operation.
type Backend interface {
	ListContainers(ctx context.Context, prefix string) ([]ContainerInfo, error)
	CreateContainer(ctx context.Context, name string) error
	List(ctx context.Context, container, prefix, delimiter string) (*ListResult, error)
	Stat(ctx context.Context, container, key string) (*ObjectInfo, error)
	Get(ctx context.Context, container, key string) (*Object, error)
	Put(ctx context.Context, container, key string, data []byte, contentType string) (*ObjectInfo, error)
	Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error
	Delete(ctx context.Context, container, key string) error
}

// Connector returns a Backend authorized with creds. Backends talking to a
// remote signing service are built per call; local ones may be shared.
type Connector func(ctx context.Context, creds *credentials.Credentials) (Backend, error)

// Shared returns a Connector that always hands out b.
func Shared(b Backend) Connector {
	return func(ctx context.Context, creds *credentials.Credentials) (Backend, error) {
		return b, nil
	}
}
