package vfs

import (
	"context"
	"sort"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// Remove deletes the file at path, or the placeholder of an empty directory.
// A bucket or a directory that still has contents fails with NotAllowed; an
// absent path fails with ObjectNotFound.
func (a *Adapter) Remove(ctx context.Context, path string) (err error) {
	o := a.begin("remove", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return fserr.New(fserr.NotAllowed, "remove", path, "deleting a bucket is not allowed")
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return err
	}

	return a.client.DeleteObject(ctx, creds, p.Container, p.Key)
}

// RemoveAll deletes the object at path, or every object under the directory
// at path, deepest keys first so placeholders go after their contents. If
// deletion stops after removing something, the error is a PartialFailure
// whose residue lists what is left.
func (a *Adapter) RemoveAll(ctx context.Context, path string) (err error) {
	o := a.begin("remove_all", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return fserr.New(fserr.NotAllowed, "remove_all", path, "deleting a bucket is not allowed")
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return err
	}

	listing, err := a.client.ListAll(ctx, creds, p.Container, p.DirPrefix())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(listing.Items)+1)
	for _, item := range listing.Items {
		keys = append(keys, item.Key)
	}
	if !p.IsDirKey() {
		if _, err := a.client.StatObject(ctx, creds, p.Container, p.Key); err == nil {
			keys = append(keys, p.Key)
		} else if fserr.KindOf(err) != fserr.ObjectNotFound {
			return err
		}
	}
	if len(keys) == 0 {
		return fserr.New(fserr.ObjectNotFound, "remove_all", path, "no such file or directory")
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	deleted, err := a.client.RemoveObjects(ctx, creds, p.Container, keys)
	if err == nil {
		return nil
	}
	if len(deleted) == 0 {
		return err
	}

	residue := make([]string, 0, len(keys)-len(deleted))
	for _, key := range keys[len(deleted):] {
		residue = append(residue, vpath.Join(p.Container, key))
	}
	return &fserr.Error{
		Kind:    fserr.PartialFailure,
		Op:      "remove_all",
		Path:    path,
		Msg:     "recursive delete stopped",
		Err:     err,
		Residue: residue,
	}
}
