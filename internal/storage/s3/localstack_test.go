package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/storage/storagetest"
)

const (
	localstackEndpoint = "http://localhost:4566"
	localstackBucket   = "bucketfs-test-localstack"
	localstackRegion   = "us-east-1"
)

// isLocalStackAvailable checks if LocalStack is running
func isLocalStackAvailable() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localstackEndpoint + "/_localstack/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func setupLocalStackTest(t *testing.T) *Backend {
	if !isLocalStackAvailable() {
		t.Skip("LocalStack is not available. Start it with: docker run -p 4566:4566 localstack/localstack")
	}

	creds := credentials.NewCredentials()
	creds.AccessKeyID = "test"
	creds.SecretAccessKey = "test"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := New(ctx, Options{Region: localstackRegion, Endpoint: localstackEndpoint}, creds)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	if err := backend.CreateContainer(ctx, localstackBucket); err != nil {
		t.Fatalf("Failed to create bucket: %v", err)
	}
	return backend
}

func TestLocalStackConformance(t *testing.T) {
	storagetest.Run(t, setupLocalStackTest(t))
}

func TestLocalStackPutGetDelete(t *testing.T) {
	backend := setupLocalStackTest(t)
	ctx := context.Background()

	key := fmt.Sprintf("put-get-%d/file with space.txt", time.Now().UnixNano())
	data := []byte("Hello from LocalStack integration test!")

	if _, err := backend.Put(ctx, localstackBucket, key, data, "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	obj, err := backend.Get(ctx, localstackBucket, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(obj.Data, data) {
		t.Errorf("Expected %q, got %q", data, obj.Data)
	}
	if obj.ContentType != "text/plain" {
		t.Errorf("Expected content type text/plain, got %q", obj.ContentType)
	}

	if err := backend.Delete(ctx, localstackBucket, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := backend.Stat(ctx, localstackBucket, key); !errors.Is(err, objectstore.ErrNotExist) {
		t.Errorf("Expected ErrNotExist after delete, got %v", err)
	}
}

func TestLocalStackListWithDelimiter(t *testing.T) {
	backend := setupLocalStackTest(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("list-%d/", time.Now().UnixNano())
	keys := []string{prefix, prefix + "a.txt", prefix + "sub/b.txt", prefix + "sub/c.txt"}
	for _, key := range keys {
		if _, err := backend.Put(ctx, localstackBucket, key, []byte("x"), ""); err != nil {
			t.Fatalf("Failed to create %s: %v", key, err)
		}
	}
	defer func() {
		for _, key := range keys {
			backend.Delete(ctx, localstackBucket, key)
		}
	}()

	result, err := backend.List(ctx, localstackBucket, prefix, objectstore.Delimiter)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("Expected 2 items (placeholder and a.txt), got %d", len(result.Items))
	}
	if len(result.CommonPrefixes) != 1 || result.CommonPrefixes[0] != prefix+"sub/" {
		t.Errorf("Expected common prefix %ssub/, got %v", prefix, result.CommonPrefixes)
	}

	all, err := backend.List(ctx, localstackBucket, prefix, "")
	if err != nil {
		t.Fatalf("recursive List failed: %v", err)
	}
	if len(all.Items) != len(keys) {
		t.Errorf("Expected %d items, got %d", len(keys), len(all.Items))
	}
}

func TestLocalStackCopyEscapedKey(t *testing.T) {
	backend := setupLocalStackTest(t)
	ctx := context.Background()

	src := fmt.Sprintf("copy-%d/ünïcode name.txt", time.Now().UnixNano())
	dst := src + ".copy"
	if _, err := backend.Put(ctx, localstackBucket, src, []byte("copied"), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	defer backend.Delete(ctx, localstackBucket, src)
	defer backend.Delete(ctx, localstackBucket, dst)

	if err := backend.Copy(ctx, localstackBucket, src, localstackBucket, dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	obj, err := backend.Get(ctx, localstackBucket, dst)
	if err != nil {
		t.Fatalf("Get of copy failed: %v", err)
	}
	if string(obj.Data) != "copied" {
		t.Errorf("Expected 'copied', got %q", obj.Data)
	}
}

func TestLocalStackMultipartPut(t *testing.T) {
	backend := setupLocalStackTest(t)
	ctx := context.Background()

	data := make([]byte, MinMultipartSize+1024)
	rand.Read(data)
	key := fmt.Sprintf("multipart-%d.bin", time.Now().UnixNano())

	if _, err := backend.Put(ctx, localstackBucket, key, data, ""); err != nil {
		t.Fatalf("multipart Put failed: %v", err)
	}
	defer backend.Delete(ctx, localstackBucket, key)

	info, err := backend.Stat(ctx, localstackBucket, key)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Size mismatch: expected %d, got %d", len(data), info.Size)
	}
}
