// Package memory is an in-process object store used by tests, demos and
// the CLI's "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

// Operation names used by Calls and Fail.
const (
	OpListContainers  = "list_containers"
	OpCreateContainer = "create_container"
	OpList            = "list"
	OpStat            = "stat"
	OpGet             = "get"
	OpPut             = "put"
	OpCopy            = "copy"
	OpDelete          = "delete"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

type bucket struct {
	created time.Time
	objects map[string]*object
}

type fault struct {
	op  string
	key string
	err error
}

// Store is an in-memory objectstore.Backend. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	calls   map[string]int
	faults  []fault
	now     func() time.Time
}

// New creates a store holding the given empty containers.
func New(containers ...string) *Store {
	s := &Store{
		buckets: make(map[string]*bucket),
		calls:   make(map[string]int),
		now:     time.Now,
	}
	for _, name := range containers {
		s.buckets[name] = &bucket{created: s.now(), objects: make(map[string]*object)}
	}
	return s
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every later call of op on key return err. An empty key matches
// any key.
func (s *Store) Fail(op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{op: op, key: key, err: err})
}

// ClearFaults removes every injected failure.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Calls returns how many times op has been invoked. An empty op returns the
// total over all operations.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if op != "" {
		return s.calls[op]
	}
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Keys returns every key stored in container, sorted.
func (s *Store) Keys(container string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[container]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// enter records a call and returns an injected failure, if any. The caller
// must hold mu for writing.
func (s *Store) enter(op, key string) error {
	s.calls[op]++
	for _, f := range s.faults {
		if f.op == op && (f.key == "" || f.key == key) {
			return f.err
		}
	}
	return nil
}

func (s *Store) bucket(name string) (*bucket, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", name, objectstore.ErrContainerNotExist)
	}
	return b, nil
}

func info(container, key string, obj *object) *objectstore.ObjectInfo {
	return &objectstore.ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
		ContentType:  obj.contentType,
	}
}

// ListContainers lists containers whose name starts with prefix.
func (s *Store) ListContainers(ctx context.Context, prefix string) ([]objectstore.ContainerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListContainers, prefix); err != nil {
		return nil, err
	}

	var out []objectstore.ContainerInfo
	for name, b := range s.buckets {
		if strings.HasPrefix(name, prefix) {
			out = append(out, objectstore.ContainerInfo{Name: name, Created: b.created})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateContainer creates a container. Creating an existing one is a no-op.
func (s *Store) CreateContainer(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreateContainer, name); err != nil {
		return err
	}
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = &bucket{created: s.now(), objects: make(map[string]*object)}
	}
	return nil
}

// List returns the objects under prefix, grouped by delimiter.
func (s *Store) List(ctx context.Context, container, prefix, delimiter string) (*objectstore.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpList, prefix); err != nil {
		return nil, err
	}
	b, err := s.bucket(container)
	if err != nil {
		return nil, err
	}

	objects := make([]objectstore.ObjectInfo, 0, len(b.objects))
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, *info(container, key, obj))
		}
	}
	return objectstore.GroupByDelimiter(prefix, delimiter, objects), nil
}

// Stat returns an object's metadata.
func (s *Store) Stat(ctx context.Context, container, key string) (*objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpStat, key); err != nil {
		return nil, err
	}
	b, err := s.bucket(container)
	if err != nil {
		return nil, err
	}

	obj, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, objectstore.ErrNotExist)
	}
	return info(container, key, obj), nil
}

// Get returns a copy of an object's content.
func (s *Store) Get(ctx context.Context, container, key string) (*objectstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGet, key); err != nil {
		return nil, err
	}
	b, err := s.bucket(container)
	if err != nil {
		return nil, err
	}

	obj, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, objectstore.ErrNotExist)
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return &objectstore.Object{ObjectInfo: *info(container, key, obj), Data: data}, nil
}

// Put stores a copy of data at key, replacing any existing object.
func (s *Store) Put(ctx context.Context, container, key string, data []byte, contentType string) (*objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpPut, key); err != nil {
		return nil, err
	}
	b, err := s.bucket(container)
	if err != nil {
		return nil, err
	}

	objData := make([]byte, len(data))
	copy(objData, data)

	obj := &object{data: objData, contentType: contentType, lastModified: s.now()}
	b.objects[key] = obj
	return info(container, key, obj), nil
}

// Copy duplicates an object. The destination takes the source's content
// type and a fresh modification time.
func (s *Store) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCopy, srcKey); err != nil {
		return err
	}
	src, err := s.bucket(srcContainer)
	if err != nil {
		return err
	}
	dst, err := s.bucket(dstContainer)
	if err != nil {
		return err
	}

	obj, ok := src.objects[srcKey]
	if !ok {
		return fmt.Errorf("source object %s/%s: %w", srcContainer, srcKey, objectstore.ErrNotExist)
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	dst.objects[dstKey] = &object{data: data, contentType: obj.contentType, lastModified: s.now()}
	return nil
}

// Delete removes an object. Deleting a missing key succeeds, as in S3.
func (s *Store) Delete(ctx context.Context, container, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete, key); err != nil {
		return err
	}
	b, err := s.bucket(container)
	if err != nil {
		return err
	}
	delete(b.objects, key)
	return nil
}

var _ objectstore.Backend = (*Store)(nil)
