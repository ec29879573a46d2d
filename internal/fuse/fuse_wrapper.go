package fuse

import (
	"context"
	"strings"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/vfs"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// FS mounts one container of a vfs.Adapter.
type FS struct {
	fs        *vfs.Adapter
	container string
	perms     Permissions
	log       logrus.FieldLogger
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// New creates the filesystem for container.
func New(adapter *vfs.Adapter, container string, perms Permissions, log logrus.FieldLogger) *FS {
	return &FS{fs: adapter, container: container, perms: perms.withDefaults(), log: log}
}

// Root returns the root directory
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fsys: f, key: ""}, nil
}

// Statfs reports large fixed numbers; object stores have no capacity limit
// that maps onto blocks.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	resp.Blocks = 1000000000
	resp.Bfree = 1000000000
	resp.Bavail = 1000000000
	resp.Files = 1000000000
	resp.Ffree = 1000000000
	resp.Bsize = 4096
	resp.Frsize = 4096
	resp.Namelen = 255
	return nil
}

// path returns the adapter path of key.
func (f *FS) path(key string) string {
	return vpath.Join(f.container, strings.TrimSuffix(key, vpath.Separator))
}

// Dir represents a directory node. key is empty for the root and ends with
// the separator otherwise.
type Dir struct {
	fsys *FS
	key  string
	// entry is nil for the root.
	entry *vfs.Entry
}

var _ fs.Node = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)
var _ fs.NodeCreater = (*Dir)(nil)
var _ fs.NodeRemover = (*Dir)(nil)
var _ fs.NodeRenamer = (*Dir)(nil)

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	d.fsys.perms.dirAttr(d.entry, a)
	return nil
}

func (d *Dir) childPath(name string) string {
	return d.fsys.path(d.key + name)
}

func (d *Dir) node(entry *vfs.Entry) fs.Node {
	if entry.IsDir() {
		key := entry.Key
		if !strings.HasSuffix(key, vpath.Separator) {
			key += vpath.Separator
		}
		return &Dir{fsys: d.fsys, key: key, entry: entry}
	}
	return &File{fsys: d.fsys, key: entry.Key, entry: *entry}
}

// Lookup looks up a child node
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	entry, err := d.fsys.fs.Stat(ctx, d.childPath(name))
	if err != nil {
		return nil, toErrno(err)
	}
	return d.node(entry), nil
}

// ReadDirAll reads all directory entries
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fsys.fs.List(ctx, d.fsys.path(d.key))
	if err != nil {
		return nil, toErrno(err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, entry := range entries {
		dirent := fuse.Dirent{Name: entry.Name}
		if entry.IsDir() {
			dirent.Type = fuse.DT_Dir
		} else {
			dirent.Type = fuse.DT_File
		}
		dirents = append(dirents, dirent)
	}
	return dirents, nil
}

// Mkdir creates a new directory
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	entry, err := d.fsys.fs.Mkdir(ctx, d.fsys.path(d.key), req.Name)
	if err != nil {
		return nil, toErrno(err)
	}
	return d.node(entry), nil
}

// Create creates a new file in the directory. Nothing is stored until the
// handle is flushed.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	if _, err := vpath.Parse(d.childPath(req.Name)); err != nil {
		return nil, nil, toErrno(err)
	}
	file := &File{
		fsys:  d.fsys,
		key:   d.key + req.Name,
		entry: vfs.Entry{Container: d.fsys.container, Key: d.key + req.Name, Name: req.Name, Kind: vfs.KindFile},
	}
	return file, newHandle(file, nil, true), nil
}

// Remove removes a file or empty directory
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	path := d.childPath(req.Name)
	if req.Dir {
		path += vpath.Separator
	}
	err := d.fsys.fs.Remove(ctx, path)
	if err != nil && req.Dir {
		return dirErrno(err)
	}
	return toErrno(err)
}

// Rename moves a child of d into newDir.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(errnoInvalid)
	}
	return toErrno(d.fsys.fs.Rename(ctx, d.childPath(req.OldName), target.childPath(req.NewName)))
}

// File represents a file node
type File struct {
	fsys *FS
	key  string

	mu      sync.Mutex
	entry   vfs.Entry
	handles map[*handle]struct{}
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.NodeSetattrer = (*File)(nil)
var _ fs.NodeFsyncer = (*File)(nil)

// Attr returns file attributes
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fsys.perms.fileAttr(&f.entry, a)
	return nil
}

func (f *File) path() string {
	return f.fsys.path(f.key)
}

func (f *File) update(entry *vfs.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entry = *entry
}

func (f *File) size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entry.Size
}

// Open opens a file. Content is fetched on first read.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if req.Flags&fuse.OpenTruncate != 0 {
		return newHandle(f, nil, true), nil
	}
	return newHandle(f, nil, false), nil
}

// Setattr supports truncation. Mode and ownership are fixed per mount and
// changes to them are ignored.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() && int64(req.Size) != f.size() {
		data, _, err := f.fsys.fs.Download(ctx, f.path())
		if err != nil {
			return toErrno(err)
		}
		data = resize(data, int64(req.Size))
		entry, err := f.fsys.fs.Write(ctx, f.path(), data)
		if err != nil {
			return toErrno(err)
		}
		f.update(entry)
		f.truncateHandles(int64(req.Size))
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync is a no-op; data reaches the store on Flush.
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return nil
}

// Options configures Mount.
type Options struct {
	Container   string
	Permissions Permissions
	ReadOnly    bool
}

// Mount serves container at mountpoint until ctx is cancelled or the
// filesystem is unmounted.
func Mount(ctx context.Context, mountpoint string, adapter *vfs.Adapter, opts Options, log logrus.FieldLogger) error {
	mountOpts := []fuse.MountOption{
		fuse.FSName("bucketfs"),
		fuse.Subtype("bucketfs"),
	}
	if opts.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}

	c, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return err
	}
	defer c.Close()

	log.WithFields(logrus.Fields{
		"mountpoint": mountpoint,
		"container":  opts.Container,
	}).Info("Mounted filesystem")

	go func() {
		<-ctx.Done()
		if err := fuse.Unmount(mountpoint); err != nil {
			log.WithError(err).Warn("Failed to unmount")
		}
	}()

	return fs.Serve(c, New(adapter, opts.Container, opts.Permissions, log))
}

