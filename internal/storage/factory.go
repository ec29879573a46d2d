package storage

import (
	"context"
	"fmt"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/storage/memory"
	"github.com/s3fs-fuse/bucketfs/internal/storage/minio"
	"github.com/s3fs-fuse/bucketfs/internal/storage/mongodb"
	"github.com/s3fs-fuse/bucketfs/internal/storage/postgres"
	"github.com/s3fs-fuse/bucketfs/internal/storage/s3"
)

// NewConnector returns the Connector for config.Type and a function
// releasing whatever it holds open. S3 and MinIO clients are built per call
// chain from the caller's credentials; database handles are opened here and
// shared.
func NewConnector(ctx context.Context, config Config) (objectstore.Connector, func() error, error) {
	noop := func() error { return nil }

	switch config.Type {
	case BackendTypeS3:
		return s3.Connector(config.S3), noop, nil

	case BackendTypeMinio:
		if config.Minio.Endpoint == "" {
			return nil, nil, fmt.Errorf("MinIO endpoint is required")
		}
		return minio.Connector(config.Minio), noop, nil

	case BackendTypePostgres:
		if config.PostgresConnStr == "" {
			return nil, nil, fmt.Errorf("PostgreSQL connection string is required")
		}
		table := config.PostgresTable
		if table == "" {
			table = "objects"
		}
		backend, err := postgres.New(ctx, config.PostgresConnStr, table)
		if err != nil {
			return nil, nil, err
		}
		return objectstore.Shared(backend), backend.Close, nil

	case BackendTypeMongoDB:
		if config.MongoURI == "" {
			return nil, nil, fmt.Errorf("MongoDB URI is required")
		}
		database := config.MongoDatabase
		if database == "" {
			database = "bucketfs"
		}
		collection := config.MongoCollection
		if collection == "" {
			collection = "objects"
		}
		backend, err := mongodb.New(ctx, config.MongoURI, database, collection)
		if err != nil {
			return nil, nil, err
		}
		return objectstore.Shared(backend), backend.Close, nil

	case BackendTypeMemory:
		return objectstore.Shared(memory.New(config.MemoryContainers...)), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend type: %s", config.Type)
	}
}
