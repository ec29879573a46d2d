package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/s3fs-fuse/bucketfs/internal/storage/storagetest"
)

func TestDocumentID(t *testing.T) {
	if got := documentID("bkt", "a/b.txt"); got != "bkt/a/b.txt" {
		t.Errorf("documentID = %q", got)
	}
}

// TestConformance runs against the server named by BUCKETFS_TEST_MONGODB,
// e.g. "mongodb://localhost:27017".
func TestConformance(t *testing.T) {
	uri := os.Getenv("BUCKETFS_TEST_MONGODB")
	if uri == "" {
		t.Skip("BUCKETFS_TEST_MONGODB not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := New(ctx, uri, "bucketfs_test", "objects")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer backend.Close()

	storagetest.Run(t, backend)
}
