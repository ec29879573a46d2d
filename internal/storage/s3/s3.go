// Package s3 stores objects in Amazon S3 or any S3-compatible service
// reachable through aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	s3api "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

const defaultRegion = "us-east-1"

// Options configures how the S3 client is built.
type Options struct {
	Region       string
	Endpoint     string // custom endpoint, e.g. LocalStack
	UsePathStyle bool
	PartSize     int64
}

// Backend implements objectstore.Backend over one S3 API client.
type Backend struct {
	api      *s3api.Client
	region   string
	partSize int64
}

// New builds a client authorized with creds. The key pair is used as a
// static provider, with the access token as session token. Requests to S3
// must be signed, so credentials without a key pair are refused with
// objectstore.ErrAccessDenied.
func New(ctx context.Context, opts Options, creds *credentials.Credentials) (*Backend, error) {
	if creds == nil || !creds.HasKeyPair() {
		return nil, fmt.Errorf("S3 requests need an access key pair: %w", objectstore.ErrAccessDenied)
	}
	region := creds.Region(opts.Region)
	if region == "" {
		region = defaultRegion
	}

	cfgOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.AccessToken,
		)),
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3api.Options)
	if opts.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3api.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	} else if opts.UsePathStyle {
		s3Options = append(s3Options, func(o *s3api.Options) {
			o.UsePathStyle = true
		})
	}

	partSize := opts.PartSize
	if partSize < MinMultipartSize {
		partSize = DefaultPartSize
	}

	return &Backend{
		api:      s3api.NewFromConfig(cfg, s3Options...),
		region:   region,
		partSize: partSize,
	}, nil
}

// Connector returns a Connector building a fresh client per call chain.
func Connector(opts Options) objectstore.Connector {
	return func(ctx context.Context, creds *credentials.Credentials) (objectstore.Backend, error) {
		return New(ctx, opts, creds)
	}
}

// mapError wraps err with the objectstore sentinel matching its S3 error code.
func mapError(action string, err error) error {
	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrNotExist, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrContainerNotExist, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrNotExist, err)
		case "NoSuchBucket":
			return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrContainerNotExist, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return fmt.Errorf("failed to %s: %w: %w", action, objectstore.ErrAccessDenied, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// copySource renders the URL-escaped "bucket/key" form CopyObject expects.
func copySource(bucket, key string) string {
	return (&url.URL{Path: bucket + "/" + key}).EscapedPath()
}

// ListContainers lists buckets whose name starts with prefix.
func (b *Backend) ListContainers(ctx context.Context, prefix string) ([]objectstore.ContainerInfo, error) {
	result, err := b.api.ListBuckets(ctx, &s3api.ListBucketsInput{})
	if err != nil {
		return nil, mapError("list buckets", err)
	}

	containers := make([]objectstore.ContainerInfo, 0, len(result.Buckets))
	for _, bkt := range result.Buckets {
		name := aws.ToString(bkt.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		containers = append(containers, objectstore.ContainerInfo{
			Name:    name,
			Created: aws.ToTime(bkt.CreationDate),
		})
	}
	return containers, nil
}

// CreateContainer creates a bucket in the client's region.
func (b *Backend) CreateContainer(ctx context.Context, name string) error {
	input := &s3api.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if b.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	if _, err := b.api.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return mapError("create bucket", err)
	}
	return nil
}

// List pages through ListObjectsV2 for prefix.
func (b *Backend) List(ctx context.Context, container, prefix, delimiter string) (*objectstore.ListResult, error) {
	input := &s3api.ListObjectsV2Input{
		Bucket: aws.String(container),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	result := &objectstore.ListResult{}
	paginator := s3api.NewListObjectsV2Paginator(b.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("list objects", err)
		}
		for _, obj := range page.Contents {
			result.Items = append(result.Items, objectstore.ObjectInfo{
				Container:    container,
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		for _, cp := range page.CommonPrefixes {
			result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
		}
	}
	return result, nil
}

// Stat issues a HEAD request for the object.
func (b *Backend) Stat(ctx context.Context, container, key string) (*objectstore.ObjectInfo, error) {
	result, err := b.api.HeadObject(ctx, &s3api.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("head object", err)
	}

	return &objectstore.ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ContentType:  aws.ToString(result.ContentType),
	}, nil
}

// Get reads the whole object.
func (b *Backend) Get(ctx context.Context, container, key string) (*objectstore.Object, error) {
	result, err := b.api.GetObject(ctx, &s3api.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("get object", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return &objectstore.Object{
		ObjectInfo: objectstore.ObjectInfo{
			Container:    container,
			Key:          key,
			Size:         int64(len(data)),
			LastModified: aws.ToTime(result.LastModified),
			ContentType:  aws.ToString(result.ContentType),
		},
		Data: data,
	}, nil
}

// Put uploads data, switching to a multipart upload for large bodies.
func (b *Backend) Put(ctx context.Context, container, key string, data []byte, contentType string) (*objectstore.ObjectInfo, error) {
	if int64(len(data)) >= MinMultipartSize {
		if err := b.putMultipart(ctx, container, key, data, contentType); err != nil {
			return nil, err
		}
	} else {
		input := &s3api.PutObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}
		if _, err := b.api.PutObject(ctx, input); err != nil {
			return nil, mapError("put object", err)
		}
	}

	return &objectstore.ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         int64(len(data)),
		LastModified: time.Now().UTC(),
		ContentType:  contentType,
	}, nil
}

// Copy performs a server-side copy. Metadata is carried over from the source.
func (b *Backend) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	_, err := b.api.CopyObject(ctx, &s3api.CopyObjectInput{
		Bucket:            aws.String(dstContainer),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(copySource(srcContainer, srcKey)),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return mapError("copy object", err)
	}
	return nil
}

// Delete removes an object.
func (b *Backend) Delete(ctx context.Context, container, key string) error {
	_, err := b.api.DeleteObject(ctx, &s3api.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError("delete object", err)
	}
	return nil
}

var _ objectstore.Backend = (*Backend)(nil)
