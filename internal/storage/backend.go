// Package storage selects and builds the objectstore.Backend a process
// talks to.
package storage

import (
	"github.com/s3fs-fuse/bucketfs/internal/storage/minio"
	"github.com/s3fs-fuse/bucketfs/internal/storage/s3"
)

// BackendType represents the type of storage backend
type BackendType string

const (
	BackendTypeS3       BackendType = "s3"
	BackendTypeMinio    BackendType = "minio"
	BackendTypePostgres BackendType = "postgres"
	BackendTypeMongoDB  BackendType = "mongodb"
	BackendTypeMemory   BackendType = "memory"
)

// Config holds configuration for creating a backend
type Config struct {
	Type BackendType

	S3    s3.Options
	Minio minio.Options

	// Postgres config
	PostgresConnStr string
	PostgresTable   string

	// MongoDB config
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Containers created up front by the memory backend
	MemoryContainers []string
}
