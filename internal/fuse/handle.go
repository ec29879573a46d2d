package fuse

import (
	"context"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"bazil.org/fuse/fuseutil"
)

// handle buffers a whole object. Objects cannot be patched in place, so
// writes go to the buffer and Flush uploads it in one piece.
type handle struct {
	file *File

	mu     sync.Mutex
	data   []byte
	loaded bool
	dirty  bool
}

var _ fs.Handle = (*handle)(nil)
var _ fs.HandleReader = (*handle)(nil)
var _ fs.HandleWriter = (*handle)(nil)
var _ fs.HandleFlusher = (*handle)(nil)
var _ fs.HandleReleaser = (*handle)(nil)

// newHandle opens file. A truncating handle starts empty and is uploaded
// on the first flush even if nothing is written.
func newHandle(file *File, data []byte, truncate bool) *handle {
	h := &handle{file: file, data: data, loaded: truncate, dirty: truncate}

	file.mu.Lock()
	if file.handles == nil {
		file.handles = make(map[*handle]struct{})
	}
	file.handles[h] = struct{}{}
	file.mu.Unlock()
	return h
}

// load fetches the object on first use. The caller must hold h.mu.
func (h *handle) load(ctx context.Context) error {
	if h.loaded {
		return nil
	}
	data, entry, err := h.file.fsys.fs.Download(ctx, h.file.path())
	if err != nil {
		return toErrno(err)
	}
	h.file.update(entry)
	h.data = data
	h.loaded = true
	return nil
}

// Read reads file data
func (h *handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.load(ctx); err != nil {
		return err
	}
	fuseutil.HandleRead(req, resp, h.data)
	return nil
}

// Write writes file data
func (h *handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.load(ctx); err != nil {
		return err
	}

	end := req.Offset + int64(len(req.Data))
	if end > int64(len(h.data)) {
		h.data = resize(h.data, end)
	}
	copy(h.data[req.Offset:], req.Data)
	h.dirty = true
	resp.Size = len(req.Data)
	return nil
}

// Flush uploads the buffer when it has changed.
func (h *handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}

	entry, err := h.file.fsys.fs.Write(ctx, h.file.path(), h.data)
	if err != nil {
		return toErrno(err)
	}
	h.file.update(entry)
	h.dirty = false
	return nil
}

// Release drops the buffer.
func (h *handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.file.mu.Lock()
	delete(h.file.handles, h)
	h.file.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.data = nil
	return nil
}

// truncateHandles resizes the buffers of open handles after a truncate.
func (f *File) truncateHandles(size int64) {
	f.mu.Lock()
	open := make([]*handle, 0, len(f.handles))
	for h := range f.handles {
		open = append(open, h)
	}
	f.mu.Unlock()

	for _, h := range open {
		h.mu.Lock()
		if h.loaded {
			h.data = resize(h.data, size)
		}
		h.mu.Unlock()
	}
}

// resize returns data grown with zeros or cut to size.
func resize(data []byte, size int64) []byte {
	if size <= int64(len(data)) {
		return data[:size]
	}
	if size <= int64(cap(data)) {
		grown := data[:size]
		clear(grown[len(data):])
		return grown
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}
