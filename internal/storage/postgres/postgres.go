// Package postgres stores objects as rows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

// foreignKeyViolation is the SQLSTATE raised when an object row names a
// container that does not exist.
const foreignKeyViolation = "23503"

// Backend implements objectstore.Backend using PostgreSQL
type Backend struct {
	db         *sql.DB
	objects    string // quoted objects table
	containers string // quoted containers table
}

// New connects to PostgreSQL and creates the tables when missing. Objects
// live in table, containers in table_containers.
func New(ctx context.Context, connStr, table string) (*Backend, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	backend := &Backend{
		db:         db,
		objects:    pq.QuoteIdentifier(table),
		containers: pq.QuoteIdentifier(table + "_containers"),
	}

	if err := backend.initSchema(ctx, table); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return backend, nil
}

// initSchema creates the necessary tables
func (p *Backend) initSchema(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			name VARCHAR(255) PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			bucket VARCHAR(255) NOT NULL REFERENCES %[1]s(name) ON DELETE CASCADE,
			key VARCHAR(4096) NOT NULL,
			data BYTEA,
			size BIGINT NOT NULL DEFAULT 0,
			content_type VARCHAR(255) NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (bucket, key)
		);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[2]s(bucket, key text_pattern_ops);
	`, p.containers, p.objects, pq.QuoteIdentifier("idx_"+table+"_prefix"))

	_, err := p.db.ExecContext(ctx, query)
	return err
}

// likePrefix escapes prefix for use in a LIKE pattern.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func (p *Backend) containerExists(ctx context.Context, name string) error {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE name = $1", p.containers)
	var one int
	err := p.db.QueryRowContext(ctx, query, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("bucket %s: %w", name, objectstore.ErrContainerNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to look up bucket: %w", err)
	}
	return nil
}

// mapError classifies a write failure.
func mapError(action, container string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("failed to %s: bucket %s: %w", action, container, objectstore.ErrContainerNotExist)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// ListContainers lists containers whose name starts with prefix.
func (p *Backend) ListContainers(ctx context.Context, prefix string) ([]objectstore.ContainerInfo, error) {
	query := fmt.Sprintf(`SELECT name, created_at FROM %s WHERE name LIKE $1 ESCAPE '\' ORDER BY name`, p.containers)
	rows, err := p.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	var containers []objectstore.ContainerInfo
	for rows.Next() {
		var c objectstore.ContainerInfo
		if err := rows.Scan(&c.Name, &c.Created); err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

// CreateContainer creates a container row. Creating an existing one is a no-op.
func (p *Backend) CreateContainer(ctx context.Context, name string) error {
	query := fmt.Sprintf("INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", p.containers)
	if _, err := p.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// List lists objects with the given prefix, grouped by delimiter.
func (p *Backend) List(ctx context.Context, container, prefix, delimiter string) (*objectstore.ListResult, error) {
	if err := p.containerExists(ctx, container); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT key, size, content_type, updated_at FROM %s WHERE bucket = $1 AND key LIKE $2 ESCAPE '\' ORDER BY key`, p.objects)
	rows, err := p.db.QueryContext(ctx, query, container, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []objectstore.ObjectInfo
	for rows.Next() {
		info := objectstore.ObjectInfo{Container: container}
		if err := rows.Scan(&info.Key, &info.Size, &info.ContentType, &info.LastModified); err != nil {
			return nil, err
		}
		objects = append(objects, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return objectstore.GroupByDelimiter(prefix, delimiter, objects), nil
}

// Stat gets object metadata
func (p *Backend) Stat(ctx context.Context, container, key string) (*objectstore.ObjectInfo, error) {
	query := fmt.Sprintf("SELECT size, content_type, updated_at FROM %s WHERE bucket = $1 AND key = $2", p.objects)
	info := &objectstore.ObjectInfo{Container: container, Key: key}

	err := p.db.QueryRowContext(ctx, query, container, key).Scan(&info.Size, &info.ContentType, &info.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, objectstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return info, nil
}

// Get reads an object
func (p *Backend) Get(ctx context.Context, container, key string) (*objectstore.Object, error) {
	query := fmt.Sprintf("SELECT data, content_type, updated_at FROM %s WHERE bucket = $1 AND key = $2", p.objects)
	obj := &objectstore.Object{ObjectInfo: objectstore.ObjectInfo{Container: container, Key: key}}

	err := p.db.QueryRowContext(ctx, query, container, key).Scan(&obj.Data, &obj.ContentType, &obj.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, objectstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	obj.Size = int64(len(obj.Data))
	return obj, nil
}

// Put writes an object, replacing any existing row
func (p *Backend) Put(ctx context.Context, container, key string, data []byte, contentType string) (*objectstore.ObjectInfo, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (bucket, key, data, size, content_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (bucket, key)
		DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			content_type = EXCLUDED.content_type,
			updated_at = NOW()
		RETURNING updated_at
	`, p.objects)

	var updated time.Time
	if err := p.db.QueryRowContext(ctx, query, container, key, data, len(data), contentType).Scan(&updated); err != nil {
		return nil, mapError("write object", container, err)
	}

	return &objectstore.ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         int64(len(data)),
		LastModified: updated,
		ContentType:  contentType,
	}, nil
}

// Copy duplicates a row inside the database.
func (p *Backend) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (bucket, key, data, size, content_type, updated_at)
		SELECT $3, $4, data, size, content_type, NOW() FROM %[1]s WHERE bucket = $1 AND key = $2
		ON CONFLICT (bucket, key)
		DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			content_type = EXCLUDED.content_type,
			updated_at = NOW()
	`, p.objects)

	result, err := p.db.ExecContext(ctx, query, srcContainer, srcKey, dstContainer, dstKey)
	if err != nil {
		return mapError("copy object", dstContainer, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("source object %s/%s: %w", srcContainer, srcKey, objectstore.ErrNotExist)
	}
	return nil
}

// Delete deletes an object. A missing row is not an error.
func (p *Backend) Delete(ctx context.Context, container, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE bucket = $1 AND key = $2", p.objects)
	if _, err := p.db.ExecContext(ctx, query, container, key); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close closes the database connection
func (p *Backend) Close() error {
	return p.db.Close()
}

var _ objectstore.Backend = (*Backend)(nil)
