package objectstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// Client performs typed store operations. Every method requires usable
// credentials and fails with fserr.NotAuthenticated before touching the
// store otherwise.
type Client struct {
	connect Connector
	log     logrus.FieldLogger
}

// NewClient creates a client over the backends produced by connect.
func NewClient(connect Connector, log logrus.FieldLogger) *Client {
	return &Client{connect: connect, log: log}
}

func objectPath(container, key string) string {
	if key == "" {
		return container
	}
	return container + "/" + key
}

// backend checks creds and connects.
func (c *Client) backend(ctx context.Context, op, path string, creds *credentials.Credentials) (Backend, error) {
	if err := creds.Check(); err != nil {
		return nil, fserr.Wrap(fserr.NotAuthenticated, op, path, err)
	}
	b, err := c.connect(ctx, creds)
	if err != nil {
		return nil, classify(op, path, err)
	}
	return b, nil
}

// classify maps backend errors onto failure kinds.
func classify(op, path string, err error) error {
	var fe *fserr.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, ErrNotExist):
		return fserr.Wrap(fserr.ObjectNotFound, op, path, err)
	case errors.Is(err, ErrContainerNotExist):
		return fserr.Wrap(fserr.ObjectNotFound, op, path, err)
	case errors.Is(err, ErrAccessDenied):
		return fserr.Wrap(fserr.NotAuthenticated, op, path, err)
	default:
		return fserr.Wrap(fserr.TransportFailure, op, path, err)
	}
}

// ListObjects lists one directory level under prefix.
func (c *Client) ListObjects(ctx context.Context, creds *credentials.Credentials, container, prefix string) (*ListResult, error) {
	return c.list(ctx, "list", creds, container, prefix, Delimiter)
}

// ListAll lists every object under prefix, at any depth.
func (c *Client) ListAll(ctx context.Context, creds *credentials.Credentials, container, prefix string) (*ListResult, error) {
	return c.list(ctx, "list", creds, container, prefix, "")
}

func (c *Client) list(ctx context.Context, op string, creds *credentials.Credentials, container, prefix, delimiter string) (*ListResult, error) {
	path := objectPath(container, prefix)
	b, err := c.backend(ctx, op, path, creds)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"container": container,
		"prefix":    prefix,
		"delimiter": delimiter,
	}).Debug("listing objects")

	result, err := b.List(ctx, container, prefix, delimiter)
	if err != nil {
		return nil, classify(op, path, err)
	}
	return result, nil
}

// ListContainers lists containers whose name starts with prefix.
func (c *Client) ListContainers(ctx context.Context, creds *credentials.Credentials, prefix string) ([]ContainerInfo, error) {
	b, err := c.backend(ctx, "list_containers", prefix, creds)
	if err != nil {
		return nil, err
	}

	containers, err := b.ListContainers(ctx, prefix)
	if err != nil {
		return nil, classify("list_containers", prefix, err)
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })
	return containers, nil
}

// CreateContainer creates a container.
func (c *Client) CreateContainer(ctx context.Context, creds *credentials.Credentials, name string) error {
	b, err := c.backend(ctx, "create_container", name, creds)
	if err != nil {
		return err
	}
	if err := b.CreateContainer(ctx, name); err != nil {
		return classify("create_container", name, err)
	}
	return nil
}

// StatObject returns an object's metadata.
func (c *Client) StatObject(ctx context.Context, creds *credentials.Credentials, container, key string) (*ObjectInfo, error) {
	path := objectPath(container, key)
	b, err := c.backend(ctx, "stat", path, creds)
	if err != nil {
		return nil, err
	}

	info, err := b.Stat(ctx, container, key)
	if err != nil {
		return nil, classify("stat", path, err)
	}
	return info, nil
}

// DownloadObject returns an object's raw content.
func (c *Client) DownloadObject(ctx context.Context, creds *credentials.Credentials, container, key string) (*Object, error) {
	path := objectPath(container, key)
	b, err := c.backend(ctx, "read", path, creds)
	if err != nil {
		return nil, err
	}

	obj, err := b.Get(ctx, container, key)
	if err != nil {
		return nil, classify("read", path, err)
	}
	return obj, nil
}

// ReadObject returns an object's content decoded as format.
func (c *Client) ReadObject(ctx context.Context, creds *credentials.Credentials, container, key string, format Format) (*Content, error) {
	obj, err := c.DownloadObject(ctx, creds, container, key)
	if err != nil {
		return nil, err
	}

	content, err := DecodeContent(format, obj.Data, obj.ContentType)
	if err != nil {
		return nil, fserr.Wrap(fserr.InvalidContent, "read", objectPath(container, key), err)
	}
	content.Info = obj.ObjectInfo
	return content, nil
}

// WriteObject stores body at key, replacing any existing object. An empty
// contentType is detected from the key and the body.
func (c *Client) WriteObject(ctx context.Context, creds *credentials.Credentials, container, key string, body []byte, contentType string) (*ObjectInfo, error) {
	path := objectPath(container, key)
	b, err := c.backend(ctx, "write", path, creds)
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = DetectContentType(key, body)
	}

	info, err := b.Put(ctx, container, key, body, contentType)
	if err != nil {
		return nil, classify("write", path, err)
	}
	return info, nil
}

// CopyObject copies one object. The source is left untouched.
func (c *Client) CopyObject(ctx context.Context, creds *credentials.Credentials, srcContainer, srcKey, dstContainer, dstKey string) error {
	path := objectPath(srcContainer, srcKey)
	b, err := c.backend(ctx, "copy", path, creds)
	if err != nil {
		return err
	}

	if err := b.Copy(ctx, srcContainer, srcKey, dstContainer, dstKey); err != nil {
		return classify("copy", path, err)
	}
	return nil
}

// DeleteObject deletes one object.
//
// The container itself and directories are never deleted here: an empty key
// fails with NotAllowed, and so does a key naming a directory that still has
// descendants, whether it is addressed by its placeholder ("dir/") or by its
// bare name ("dir"). A placeholder with nothing beneath it is deleted. A key
// that names neither an object nor a directory fails with ObjectNotFound.
func (c *Client) DeleteObject(ctx context.Context, creds *credentials.Credentials, container, key string) error {
	path := objectPath(container, key)
	b, err := c.backend(ctx, "delete", path, creds)
	if err != nil {
		return err
	}

	if key == "" {
		return fserr.New(fserr.NotAllowed, "delete", path, "deleting a bucket is not allowed")
	}

	if strings.HasSuffix(key, Delimiter) {
		return c.deletePlaceholder(ctx, b, container, key)
	}

	if _, err := b.Stat(ctx, container, key); err != nil {
		if !errors.Is(err, ErrNotExist) {
			return classify("delete", path, err)
		}
		return c.deleteMissing(ctx, b, container, key)
	}

	if err := b.Delete(ctx, container, key); err != nil {
		return classify("delete", path, err)
	}
	return nil
}

// deleteMissing explains why a key without an object cannot be deleted.
func (c *Client) deleteMissing(ctx context.Context, b Backend, container, key string) error {
	path := objectPath(container, key)
	dir := key + Delimiter

	children, err := b.List(ctx, container, dir, Delimiter)
	if err != nil {
		return classify("delete", path, err)
	}
	if len(children.Items) == 0 && len(children.CommonPrefixes) == 0 {
		return fserr.New(fserr.ObjectNotFound, "delete", path, "file not found")
	}
	if onlyPlaceholder(children, dir) {
		return c.deletePlaceholder(ctx, b, container, dir)
	}
	return fserr.New(fserr.NotAllowed, "delete", path, "deleting a non-empty folder is not allowed")
}

func (c *Client) deletePlaceholder(ctx context.Context, b Backend, container, dir string) error {
	path := objectPath(container, dir)

	children, err := b.List(ctx, container, dir, Delimiter)
	if err != nil {
		return classify("delete", path, err)
	}
	if len(children.Items) == 0 && len(children.CommonPrefixes) == 0 {
		return fserr.New(fserr.ObjectNotFound, "delete", path, "folder not found")
	}
	if !onlyPlaceholder(children, dir) {
		return fserr.New(fserr.NotAllowed, "delete", path, "deleting a non-empty folder is not allowed")
	}

	if err := b.Delete(ctx, container, dir); err != nil {
		return classify("delete", path, err)
	}
	return nil
}

func onlyPlaceholder(children *ListResult, dir string) bool {
	return len(children.CommonPrefixes) == 0 &&
		len(children.Items) == 1 &&
		children.Items[0].Key == dir
}

// RemoveObjects deletes keys one by one in the given order, without the
// directory checks of DeleteObject. It stops at the first failure and
// returns the keys deleted so far.
func (c *Client) RemoveObjects(ctx context.Context, creds *credentials.Credentials, container string, keys []string) ([]string, error) {
	b, err := c.backend(ctx, "delete", container, creds)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := b.Delete(ctx, container, key); err != nil {
			return deleted, classify("delete", objectPath(container, key), err)
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}
