package fuse

import (
	"os"

	"bazil.org/fuse"

	"github.com/s3fs-fuse/bucketfs/internal/vfs"
)

// Permissions holds the ownership and modes reported for every node of a
// mount. Objects carry no POSIX metadata, so they are set per mount.
type Permissions struct {
	Uid      uint32
	Gid      uint32
	FileMode os.FileMode
	DirMode  os.FileMode
}

// DefaultPermissions returns the current user's ids with 0644 files and 0755
// directories.
func DefaultPermissions() Permissions {
	return Permissions{
		Uid:      uint32(os.Getuid()),
		Gid:      uint32(os.Getgid()),
		FileMode: 0644,
		DirMode:  0755,
	}
}

func (p Permissions) withDefaults() Permissions {
	if p.FileMode == 0 {
		p.FileMode = 0644
	}
	if p.DirMode == 0 {
		p.DirMode = 0755
	}
	return p
}

func (p Permissions) fileAttr(entry *vfs.Entry, a *fuse.Attr) {
	a.Mode = p.FileMode & os.ModePerm
	a.Size = uint64(entry.Size)
	a.Mtime = entry.LastModified
	a.Ctime = entry.LastModified
	a.Uid = p.Uid
	a.Gid = p.Gid
}

func (p Permissions) dirAttr(entry *vfs.Entry, a *fuse.Attr) {
	a.Mode = os.ModeDir | p.DirMode&os.ModePerm
	if entry != nil {
		a.Mtime = entry.LastModified
		a.Ctime = entry.LastModified
	}
	a.Uid = p.Uid
	a.Gid = p.Gid
}
