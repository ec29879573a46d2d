package fuse

import (
	"syscall"

	"bazil.org/fuse"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

const errnoInvalid = syscall.EINVAL

// toErrno maps a filesystem error to the errno returned to the kernel.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch fserr.KindOf(err) {
	case fserr.InvalidPath:
		return fuse.Errno(syscall.EINVAL)
	case fserr.NotAuthenticated:
		return fuse.Errno(syscall.EACCES)
	case fserr.ObjectNotFound:
		return fuse.Errno(syscall.ENOENT)
	case fserr.NotAllowed:
		return fuse.Errno(syscall.EPERM)
	case fserr.InvalidContent:
		return fuse.Errno(syscall.EINVAL)
	default:
		return fuse.Errno(syscall.EIO)
	}
}

// dirErrno is toErrno for rmdir, where a refused delete means the
// directory still has entries.
func dirErrno(err error) error {
	if fserr.KindOf(err) == fserr.NotAllowed {
		return fuse.Errno(syscall.ENOTEMPTY)
	}
	return toErrno(err)
}
