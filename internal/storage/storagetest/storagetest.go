// Package storagetest holds a conformance suite every objectstore.Backend
// must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
)

// Run exercises b. The backend must accept CreateContainer for fresh names.
func Run(t *testing.T, b objectstore.Backend) {
	ctx := context.Background()
	container := fmt.Sprintf("conformance-%d", time.Now().UnixNano())
	require.NoError(t, b.CreateContainer(ctx, container))
	require.NoError(t, b.CreateContainer(ctx, container), "creating an existing container succeeds")

	t.Run("ContainersByPrefix", func(t *testing.T) {
		containers, err := b.ListContainers(ctx, container)
		require.NoError(t, err)
		require.Len(t, containers, 1)
		assert.Equal(t, container, containers[0].Name)
	})

	t.Run("PutGetStat", func(t *testing.T) {
		info, err := b.Put(ctx, container, "docs/readme.md", []byte("# hi"), "text/markdown")
		require.NoError(t, err)
		assert.Equal(t, int64(4), info.Size)

		obj, err := b.Get(ctx, container, "docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, "# hi", string(obj.Data))
		assert.Equal(t, "text/markdown", obj.ContentType)

		stat, err := b.Stat(ctx, container, "docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, int64(4), stat.Size)

		_, err = b.Put(ctx, container, "docs/readme.md", []byte("replaced"), "text/plain")
		require.NoError(t, err)
		obj, err = b.Get(ctx, container, "docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, "replaced", string(obj.Data))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := b.Get(ctx, container, "nope")
		assert.True(t, errors.Is(err, objectstore.ErrNotExist), "got %v", err)
		_, err = b.Stat(ctx, container, "nope")
		assert.True(t, errors.Is(err, objectstore.ErrNotExist), "got %v", err)
		err = b.Copy(ctx, container, "nope", container, "other")
		assert.True(t, errors.Is(err, objectstore.ErrNotExist), "got %v", err)
		assert.NoError(t, b.Delete(ctx, container, "nope"))
	})

	t.Run("ListDelimiter", func(t *testing.T) {
		for _, key := range []string{"tree/", "tree/a.txt", "tree/b%_.txt", "tree/sub/c.txt", "tree/sub/d/e.txt", "treehouse"} {
			_, err := b.Put(ctx, container, key, []byte("x"), "")
			require.NoError(t, err)
		}

		res, err := b.List(ctx, container, "tree/", objectstore.Delimiter)
		require.NoError(t, err)
		var keys []string
		for _, it := range res.Items {
			keys = append(keys, it.Key)
		}
		assert.ElementsMatch(t, []string{"tree/", "tree/a.txt", "tree/b%_.txt"}, keys)
		assert.Equal(t, []string{"tree/sub/"}, res.CommonPrefixes)

		res, err = b.List(ctx, container, "tree/", "")
		require.NoError(t, err)
		assert.Len(t, res.Items, 5)
		assert.Empty(t, res.CommonPrefixes)

		res, err = b.List(ctx, container, "tree/b%", objectstore.Delimiter)
		require.NoError(t, err)
		assert.Len(t, res.Items, 1, "prefix characters are matched literally")
	})

	t.Run("CopyDelete", func(t *testing.T) {
		_, err := b.Put(ctx, container, "mv/src", []byte("payload"), "application/octet-stream")
		require.NoError(t, err)

		require.NoError(t, b.Copy(ctx, container, "mv/src", container, "mv/dst"))
		obj, err := b.Get(ctx, container, "mv/dst")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(obj.Data))

		_, err = b.Stat(ctx, container, "mv/src")
		assert.NoError(t, err, "copy leaves the source in place")

		require.NoError(t, b.Delete(ctx, container, "mv/src"))
		_, err = b.Stat(ctx, container, "mv/src")
		assert.True(t, errors.Is(err, objectstore.ErrNotExist))
	})

	t.Run("MissingContainer", func(t *testing.T) {
		_, err := b.List(ctx, container+"-absent", "", objectstore.Delimiter)
		assert.True(t, errors.Is(err, objectstore.ErrContainerNotExist), "got %v", err)
	})
}
