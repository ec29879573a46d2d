package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3api "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// MinMultipartSize is the body size from which Put uses a multipart upload (5MB)
	MinMultipartSize = 5 * 1024 * 1024
	// DefaultPartSize is the default part size for multipart upload (5MB)
	DefaultPartSize = 5 * 1024 * 1024
)

// partRanges splits size bytes into [start, end) ranges of partSize.
func partRanges(size, partSize int64) [][2]int64 {
	total := (size + partSize - 1) / partSize
	ranges := make([][2]int64, 0, total)
	for i := int64(0); i < total; i++ {
		start := i * partSize
		end := start + partSize
		if end > size {
			end = size
		}
		ranges = append(ranges, [2]int64{start, end})
	}
	return ranges
}

// putMultipart uploads data in parts and aborts the upload on any failure.
func (b *Backend) putMultipart(ctx context.Context, container, key string, data []byte, contentType string) error {
	input := &s3api.CreateMultipartUploadInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	created, err := b.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return mapError("create multipart upload", err)
	}
	if created.UploadId == nil {
		return fmt.Errorf("upload ID is nil")
	}
	uploadID := created.UploadId

	var parts []types.CompletedPart
	for i, r := range partRanges(int64(len(data)), b.partSize) {
		partNumber := aws.Int32(int32(i + 1))
		result, err := b.api.UploadPart(ctx, &s3api.UploadPartInput{
			Bucket:     aws.String(container),
			Key:        aws.String(key),
			PartNumber: partNumber,
			UploadId:   uploadID,
			Body:       bytes.NewReader(data[r[0]:r[1]]),
		})
		if err != nil {
			b.abort(ctx, container, key, uploadID)
			return mapError(fmt.Sprintf("upload part %d", i+1), err)
		}
		if result.ETag == nil {
			b.abort(ctx, container, key, uploadID)
			return fmt.Errorf("ETag is nil for part %d", i+1)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: partNumber,
		})
	}

	_, err = b.api.CompleteMultipartUpload(ctx, &s3api.CompleteMultipartUploadInput{
		Bucket:   aws.String(container),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		b.abort(ctx, container, key, uploadID)
		return mapError("complete multipart upload", err)
	}
	return nil
}

func (b *Backend) abort(ctx context.Context, container, key string, uploadID *string) {
	_, _ = b.api.AbortMultipartUpload(ctx, &s3api.AbortMultipartUploadInput{
		Bucket:   aws.String(container),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}
