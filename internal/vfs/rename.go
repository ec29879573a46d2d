package vfs

import (
	"context"
	"strings"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// Rename moves a file or a directory tree by copying each object and then
// deleting its source.
//
// A failed copy before anything moved leaves the store untouched and
// returns the copy error. Any later failure returns a PartialFailure whose
// residue names every key still at the source plus, when a delete failed,
// the copy that now duplicates it.
func (a *Adapter) Rename(ctx context.Context, oldPath, newPath string) (err error) {
	o := a.begin("rename", oldPath)
	defer func() { o.finish(err) }()

	src, err := o.resolve(oldPath)
	if err != nil {
		return err
	}
	dst, err := o.resolve(newPath)
	if err != nil {
		return err
	}
	if src.IsRoot() || dst.IsRoot() {
		return fserr.New(fserr.NotAllowed, "rename", oldPath, "renaming a bucket is not allowed")
	}
	if src.Container == dst.Container && src.FileKey() == dst.FileKey() {
		return fserr.New(fserr.InvalidPath, "rename", oldPath, "source and destination are the same")
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return err
	}

	if !src.IsDirKey() {
		_, err := a.client.StatObject(ctx, creds, src.Container, src.Key)
		if err == nil {
			if dst.IsDirKey() {
				return fserr.New(fserr.InvalidPath, "rename", newPath, "destination of a file must not end with a separator")
			}
			return a.moveObject(ctx, creds, src, src.Key, dst, dst.Key)
		}
		if fserr.KindOf(err) != fserr.ObjectNotFound {
			return err
		}
	}

	return a.moveTree(ctx, creds, src, dst, oldPath)
}

// moveObject copies one object and deletes its source.
func (a *Adapter) moveObject(ctx context.Context, creds *credentials.Credentials, src vpath.Path, srcKey string, dst vpath.Path, dstKey string) error {
	if err := a.client.CopyObject(ctx, creds, src.Container, srcKey, dst.Container, dstKey); err != nil {
		return err
	}
	if _, err := a.client.RemoveObjects(ctx, creds, src.Container, []string{srcKey}); err != nil {
		return &fserr.Error{
			Kind:    fserr.PartialFailure,
			Op:      "rename",
			Path:    vpath.Join(src.Container, srcKey),
			Msg:     "copied but could not delete the source",
			Err:     err,
			Residue: []string{vpath.Join(src.Container, srcKey), vpath.Join(dst.Container, dstKey)},
		}
	}
	return nil
}

// moveTree moves every object under src's directory prefix.
func (a *Adapter) moveTree(ctx context.Context, creds *credentials.Credentials, src, dst vpath.Path, oldPath string) error {
	srcPrefix := src.DirPrefix()
	dstPrefix := dst.DirPrefix()
	if src.Container == dst.Container && strings.HasPrefix(dstPrefix, srcPrefix) {
		return fserr.New(fserr.InvalidPath, "rename", oldPath, "cannot move a folder into itself")
	}

	listing, err := a.client.ListAll(ctx, creds, src.Container, srcPrefix)
	if err != nil {
		return err
	}
	if len(listing.Items) == 0 {
		return fserr.New(fserr.ObjectNotFound, "rename", oldPath, "no such file or directory")
	}

	for i, item := range listing.Items {
		dstKey := dstPrefix + strings.TrimPrefix(item.Key, srcPrefix)
		err := a.moveObject(ctx, creds, src, item.Key, dst, dstKey)
		if err == nil {
			continue
		}
		if i == 0 && fserr.KindOf(err) != fserr.PartialFailure {
			return err
		}

		residue := fserr.ResidueOf(err)
		if len(residue) == 0 {
			residue = []string{vpath.Join(src.Container, item.Key)}
		}
		for _, rest := range listing.Items[i+1:] {
			residue = append(residue, vpath.Join(src.Container, rest.Key))
		}
		return &fserr.Error{
			Kind:    fserr.PartialFailure,
			Op:      "rename",
			Path:    oldPath,
			Msg:     "folder move stopped",
			Err:     err,
			Residue: residue,
		}
	}
	return nil
}
