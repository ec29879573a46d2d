package vfs

import (
	"context"
	"strings"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// directoryContentType marks placeholder objects.
const directoryContentType = "application/x-directory"

// List returns one directory level: a directory entry per common prefix and
// a file entry per direct child object. The listed directory's own
// placeholder is not part of its listing. Directories come first, each
// group in the order the store returned it.
func (a *Adapter) List(ctx context.Context, path string) (_ []Entry, err error) {
	o := a.begin("list", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}

	prefix := p.DirPrefix()
	result, err := a.client.ListObjects(ctx, creds, p.Container, prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(result.CommonPrefixes)+len(result.Items))
	for _, cp := range result.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), vpath.Separator)
		entries = append(entries, dirEntry(p.Container, cp, name))
	}
	for _, item := range result.Items {
		if item.Key == prefix {
			continue
		}
		entries = append(entries, fileEntry(item, strings.TrimPrefix(item.Key, prefix)))
	}

	if a.dirTimes && len(result.CommonPrefixes) > 0 {
		if err := a.stampDirectories(ctx, creds, p.Container, prefix, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// stampDirectories sets each directory entry's LastModified to the newest
// object found beneath it.
func (a *Adapter) stampDirectories(ctx context.Context, creds *credentials.Credentials, container, prefix string, entries []Entry) error {
	all, err := a.client.ListAll(ctx, creds, container, prefix)
	if err != nil {
		return err
	}

	newest := make(map[string]int, len(entries))
	for i := range entries {
		if entries[i].IsDir() {
			newest[entries[i].Key] = i
		}
	}

	for _, item := range all.Items {
		rest := strings.TrimPrefix(item.Key, prefix)
		idx := strings.Index(rest, vpath.Separator)
		if idx < 0 {
			continue
		}
		i, ok := newest[prefix+rest[:idx+1]]
		if !ok {
			continue
		}
		if item.LastModified.After(entries[i].LastModified) {
			entries[i].LastModified = item.LastModified
		}
	}
	return nil
}

// Stat describes the file or directory at path. A key with no object of its
// own is a directory when anything exists beneath it; the bare container is
// always a directory.
func (a *Adapter) Stat(ctx context.Context, path string) (_ *Entry, err error) {
	o := a.begin("stat", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}

	if p.IsRoot() {
		// Listing the root proves the container exists.
		if _, err := a.client.ListObjects(ctx, creds, p.Container, ""); err != nil {
			return nil, err
		}
		entry := dirEntry(p.Container, "", p.Container)
		return &entry, nil
	}

	if !p.IsDirKey() {
		info, err := a.client.StatObject(ctx, creds, p.Container, p.Key)
		if err == nil {
			entry := fileEntry(*info, p.Name)
			return &entry, nil
		}
		if fserr.KindOf(err) != fserr.ObjectNotFound {
			return nil, err
		}
	}

	prefix := p.DirPrefix()
	children, err := a.client.ListObjects(ctx, creds, p.Container, prefix)
	if err != nil {
		return nil, err
	}
	if len(children.Items) == 0 && len(children.CommonPrefixes) == 0 {
		return nil, fserr.New(fserr.ObjectNotFound, "stat", path, "no such file or directory")
	}

	entry := dirEntry(p.Container, prefix, p.Name)
	for _, item := range children.Items {
		if item.Key == prefix {
			entry.LastModified = item.LastModified
		}
	}
	return &entry, nil
}

// fileKey resolves path to an object key, rejecting the container root and
// directory-shaped keys.
func fileKey(op string, p vpath.Path, path string) error {
	if p.IsRoot() {
		return fserr.New(fserr.InvalidPath, op, path, "path names a bucket, not a file")
	}
	if p.IsDirKey() {
		return fserr.New(fserr.InvalidPath, op, path, "path names a folder, not a file")
	}
	return nil
}

// Read returns the object at path decoded as format.
func (a *Adapter) Read(ctx context.Context, path string, format objectstore.Format) (_ *objectstore.Content, err error) {
	o := a.begin("read", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := fileKey("read", p, path); err != nil {
		return nil, err
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}

	content, err := a.client.ReadObject(ctx, creds, p.Container, p.Key, format)
	if err != nil {
		return nil, err
	}
	a.recorder.RecordObjectSize("read", content.Info.Size)
	return content, nil
}

// Download returns the raw bytes at path together with its entry.
func (a *Adapter) Download(ctx context.Context, path string) (_ []byte, _ *Entry, err error) {
	o := a.begin("download", path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	if err := fileKey("download", p, path); err != nil {
		return nil, nil, err
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, nil, err
	}

	obj, err := a.client.DownloadObject(ctx, creds, p.Container, p.Key)
	if err != nil {
		return nil, nil, err
	}
	a.recorder.RecordObjectSize("download", obj.Size)
	entry := fileEntry(obj.ObjectInfo, p.Name)
	return obj.Data, &entry, nil
}

// Write replaces the object at path with body. Parent directories need no
// placeholders; they appear as soon as something lists their prefix.
func (a *Adapter) Write(ctx context.Context, path string, body []byte) (*Entry, error) {
	return a.write(ctx, "write", path, body, "")
}

// Save encodes value as format and writes it to path. JSON documents are
// stored as application/json; data URIs keep their declared media type.
func (a *Adapter) Save(ctx context.Context, path string, format objectstore.Format, value interface{}) (*Entry, error) {
	body, contentType, err := objectstore.EncodeContent(format, value)
	if err != nil {
		o := a.begin("save", path)
		err = fserr.Wrap(fserr.InvalidContent, "save", path, err)
		o.finish(err)
		return nil, err
	}
	return a.write(ctx, "save", path, body, contentType)
}

func (a *Adapter) write(ctx context.Context, name, path string, body []byte, contentType string) (_ *Entry, err error) {
	o := a.begin(name, path)
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := fileKey(name, p, path); err != nil {
		return nil, err
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}

	info, err := a.client.WriteObject(ctx, creds, p.Container, p.Key, body, contentType)
	if err != nil {
		return nil, err
	}
	a.recorder.RecordObjectSize(name, info.Size)
	entry := fileEntry(*info, p.Name)
	return &entry, nil
}

// Mkdir creates folderName inside the directory at path by writing a
// zero-length placeholder at "<path>/<folderName>/".
func (a *Adapter) Mkdir(ctx context.Context, path, folderName string) (_ *Entry, err error) {
	o := a.begin("mkdir", vpath.Join(path, folderName))
	defer func() { o.finish(err) }()

	p, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	if folderName == "" || folderName == "." || folderName == ".." || strings.Contains(folderName, vpath.Separator) {
		return nil, fserr.New(fserr.InvalidPath, "mkdir", o.path, "folder name must be a single non-empty segment")
	}
	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}

	key := p.DirPrefix() + folderName + vpath.Separator
	info, err := a.client.WriteObject(ctx, creds, p.Container, key, nil, directoryContentType)
	if err != nil {
		return nil, err
	}

	entry := dirEntry(p.Container, key, folderName)
	entry.LastModified = info.LastModified
	return &entry, nil
}
