// Package mongodb stores objects as documents in MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

// ObjectDocument represents an object document in MongoDB
type ObjectDocument struct {
	ID          string    `bson:"_id"`
	Bucket      string    `bson:"bucket"`
	Key         string    `bson:"key"`
	Data        []byte    `bson:"data"`
	Size        int64     `bson:"size"`
	ContentType string    `bson:"content_type"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// ContainerDocument represents a container document in MongoDB
type ContainerDocument struct {
	Name      string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// Backend implements objectstore.Backend using MongoDB
type Backend struct {
	client     *mongo.Client
	objects    *mongo.Collection
	containers *mongo.Collection
}

// New connects to MongoDB. Objects live in collection, containers in
// collection_containers.
func New(ctx context.Context, uri, database, collection string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	objects := db.Collection(collection)

	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "bucket", Value: 1},
			{Key: "key", Value: 1},
		},
	}
	if _, err := objects.Indexes().CreateOne(ctx, indexModel); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Backend{
		client:     client,
		objects:    objects,
		containers: db.Collection(collection + "_containers"),
	}, nil
}

func documentID(container, key string) string {
	return container + "/" + key
}

func (m *Backend) containerExists(ctx context.Context, name string) error {
	err := m.containers.FindOne(ctx, bson.M{"_id": name}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("bucket %s: %w", name, objectstore.ErrContainerNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to look up bucket: %w", err)
	}
	return nil
}

func toInfo(doc *ObjectDocument) objectstore.ObjectInfo {
	return objectstore.ObjectInfo{
		Container:    doc.Bucket,
		Key:          doc.Key,
		Size:         doc.Size,
		LastModified: doc.UpdatedAt,
		ContentType:  doc.ContentType,
	}
}

// ListContainers lists containers whose name starts with prefix.
func (m *Backend) ListContainers(ctx context.Context, prefix string) ([]objectstore.ContainerInfo, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	cursor, err := m.containers.Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer cursor.Close(ctx)

	var containers []objectstore.ContainerInfo
	for cursor.Next(ctx) {
		var doc ContainerDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		containers = append(containers, objectstore.ContainerInfo{Name: doc.Name, Created: doc.CreatedAt})
	}
	return containers, cursor.Err()
}

// CreateContainer creates a container document unless it exists.
func (m *Backend) CreateContainer(ctx context.Context, name string) error {
	_, err := m.containers.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// List lists objects with the given prefix, grouped by delimiter.
func (m *Backend) List(ctx context.Context, container, prefix, delimiter string) (*objectstore.ListResult, error) {
	if err := m.containerExists(ctx, container); err != nil {
		return nil, err
	}

	filter := bson.M{
		"bucket": container,
		"key":    bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
	}
	opts := options.Find().
		SetSort(bson.M{"key": 1}).
		SetProjection(bson.M{"data": 0})

	cursor, err := m.objects.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer cursor.Close(ctx)

	var objects []objectstore.ObjectInfo
	for cursor.Next(ctx) {
		var doc ObjectDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		objects = append(objects, toInfo(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return objectstore.GroupByDelimiter(prefix, delimiter, objects), nil
}

func (m *Backend) find(ctx context.Context, container, key string, opts ...*options.FindOneOptions) (*ObjectDocument, error) {
	var doc ObjectDocument
	err := m.objects.FindOne(ctx, bson.M{"_id": documentID(container, key)}, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, objectstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return &doc, nil
}

// Stat gets object metadata
func (m *Backend) Stat(ctx context.Context, container, key string) (*objectstore.ObjectInfo, error) {
	doc, err := m.find(ctx, container, key, options.FindOne().SetProjection(bson.M{"data": 0}))
	if err != nil {
		return nil, err
	}
	info := toInfo(doc)
	return &info, nil
}

// Get reads an object
func (m *Backend) Get(ctx context.Context, container, key string) (*objectstore.Object, error) {
	doc, err := m.find(ctx, container, key)
	if err != nil {
		return nil, err
	}
	return &objectstore.Object{ObjectInfo: toInfo(doc), Data: doc.Data}, nil
}

func (m *Backend) replace(ctx context.Context, doc *ObjectDocument) error {
	_, err := m.objects.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Put writes an object, replacing any existing document
func (m *Backend) Put(ctx context.Context, container, key string, data []byte, contentType string) (*objectstore.ObjectInfo, error) {
	if err := m.containerExists(ctx, container); err != nil {
		return nil, err
	}

	doc := &ObjectDocument{
		ID:          documentID(container, key),
		Bucket:      container,
		Key:         key,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := m.replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to write object: %w", err)
	}

	info := toInfo(doc)
	return &info, nil
}

// Copy duplicates a document under the destination key.
func (m *Backend) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	src, err := m.find(ctx, srcContainer, srcKey)
	if err != nil {
		return err
	}
	if err := m.containerExists(ctx, dstContainer); err != nil {
		return err
	}

	dst := *src
	dst.ID = documentID(dstContainer, dstKey)
	dst.Bucket = dstContainer
	dst.Key = dstKey
	dst.UpdatedAt = time.Now().UTC()
	if err := m.replace(ctx, &dst); err != nil {
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return nil
}

// Delete deletes an object. A missing document is not an error.
func (m *Backend) Delete(ctx context.Context, container, key string) error {
	if _, err := m.objects.DeleteOne(ctx, bson.M{"_id": documentID(container, key)}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (m *Backend) Close() error {
	return m.client.Disconnect(context.Background())
}

var _ objectstore.Backend = (*Backend)(nil)
