// Package minio stores objects on a MinIO server through minio-go.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

// Options configures the MinIO connection.
type Options struct {
	Endpoint string // host:port
	Secure   bool
	Region   string
}

// Backend implements objectstore.Backend over a minio-go client.
type Backend struct {
	client *miniogo.Client
	region string
}

// New creates a client for opts.Endpoint authorized with creds. Credentials
// without a key pair cannot sign requests and are refused with
// objectstore.ErrAccessDenied.
func New(opts Options, creds *credentials.Credentials) (*Backend, error) {
	if creds == nil || !creds.HasKeyPair() {
		return nil, fmt.Errorf("MinIO requests need an access key pair: %w", objectstore.ErrAccessDenied)
	}
	provider := miniocreds.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, creds.AccessToken)

	region := creds.Region(opts.Region)
	client, err := miniogo.New(opts.Endpoint, &miniogo.Options{
		Creds:  provider,
		Secure: opts.Secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Backend{client: client, region: region}, nil
}

// Connector returns a Connector building a fresh client per call chain.
func Connector(opts Options) objectstore.Connector {
	return func(ctx context.Context, creds *credentials.Credentials) (objectstore.Backend, error) {
		return New(opts, creds)
	}
}

// mapError wraps err with the objectstore sentinel matching its S3 error code.
func mapError(action string, err error) error {
	resp := miniogo.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrNotExist, err)
	case "NoSuchBucket":
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrContainerNotExist, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrAccessDenied, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrNotExist, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func toInfo(container string, obj miniogo.ObjectInfo) objectstore.ObjectInfo {
	return objectstore.ObjectInfo{
		Container:    container,
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
	}
}

// ListContainers lists buckets whose name starts with prefix.
func (b *Backend) ListContainers(ctx context.Context, prefix string) ([]objectstore.ContainerInfo, error) {
	buckets, err := b.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError("list buckets", err)
	}

	containers := make([]objectstore.ContainerInfo, 0, len(buckets))
	for _, bkt := range buckets {
		if strings.HasPrefix(bkt.Name, prefix) {
			containers = append(containers, objectstore.ContainerInfo{Name: bkt.Name, Created: bkt.CreationDate})
		}
	}
	return containers, nil
}

// CreateContainer creates a bucket unless it already exists.
func (b *Backend) CreateContainer(ctx context.Context, name string) error {
	err := b.client.MakeBucket(ctx, name, miniogo.MakeBucketOptions{Region: b.region})
	if err == nil {
		return nil
	}
	if exists, existsErr := b.client.BucketExists(ctx, name); existsErr == nil && exists {
		return nil
	}
	return mapError("create bucket", err)
}

// List collects the listing channel. In a non-recursive listing minio-go
// reports common prefixes as entries whose key ends with the delimiter;
// those are split out of Items, except the listed placeholder itself.
func (b *Backend) List(ctx context.Context, container, prefix, delimiter string) (*objectstore.ListResult, error) {
	opts := miniogo.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: delimiter == "",
	}

	result := &objectstore.ListResult{}
	for obj := range b.client.ListObjects(ctx, container, opts) {
		if obj.Err != nil {
			return nil, mapError("list objects", obj.Err)
		}
		if delimiter != "" && obj.Key != prefix && strings.HasSuffix(obj.Key, delimiter) {
			result.CommonPrefixes = append(result.CommonPrefixes, obj.Key)
			continue
		}
		result.Items = append(result.Items, toInfo(container, obj))
	}
	return result, nil
}

// Stat returns the object's metadata.
func (b *Backend) Stat(ctx context.Context, container, key string) (*objectstore.ObjectInfo, error) {
	obj, err := b.client.StatObject(ctx, container, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError("stat object", err)
	}
	info := toInfo(container, obj)
	return &info, nil
}

// Get reads the whole object.
func (b *Backend) Get(ctx context.Context, container, key string) (*objectstore.Object, error) {
	obj, err := b.client.GetObject(ctx, container, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError("get object", err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, mapError("get object", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError("read object body", err)
	}

	info := toInfo(container, stat)
	info.Key = key
	info.Size = int64(len(data))
	return &objectstore.Object{ObjectInfo: info, Data: data}, nil
}

// Put uploads data. minio-go switches to multipart uploads on its own.
func (b *Backend) Put(ctx context.Context, container, key string, data []byte, contentType string) (*objectstore.ObjectInfo, error) {
	upload, err := b.client.PutObject(ctx, container, key, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapError("put object", err)
	}

	return &objectstore.ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         upload.Size,
		LastModified: upload.LastModified,
		ContentType:  contentType,
	}, nil
}

// Copy performs a server-side copy.
func (b *Backend) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	_, err := b.client.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: dstContainer, Object: dstKey},
		miniogo.CopySrcOptions{Bucket: srcContainer, Object: srcKey},
	)
	if err != nil {
		return mapError("copy object", err)
	}
	return nil
}

// Delete removes an object.
func (b *Backend) Delete(ctx context.Context, container, key string) error {
	if err := b.client.RemoveObject(ctx, container, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError("delete object", err)
	}
	return nil
}

var _ objectstore.Backend = (*Backend)(nil)
