package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3fs-fuse/bucketfs/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, New())
}

func TestFaultInjection(t *testing.T) {
	s := New("bkt")
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := s.Put(ctx, "bkt", "a", []byte("1"), "")
	require.NoError(t, err)

	s.Fail(OpDelete, "a", boom)
	assert.ErrorIs(t, s.Delete(ctx, "bkt", "a"), boom)
	assert.NoError(t, s.Delete(ctx, "bkt", "other"), "faults match by key")
	assert.Equal(t, []string{"a"}, s.Keys("bkt"))

	s.ClearFaults()
	assert.NoError(t, s.Delete(ctx, "bkt", "a"))
	assert.Empty(t, s.Keys("bkt"))
}

func TestCallCounter(t *testing.T) {
	s := New("bkt")
	ctx := context.Background()

	_, _ = s.Put(ctx, "bkt", "a", nil, "")
	_, _ = s.Stat(ctx, "bkt", "a")
	_, _ = s.Stat(ctx, "bkt", "b")

	assert.Equal(t, 1, s.Calls(OpPut))
	assert.Equal(t, 2, s.Calls(OpStat))
	assert.Equal(t, 3, s.Calls(""))
}

func TestClock(t *testing.T) {
	s := New("bkt")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	info, err := s.Put(context.Background(), "bkt", "a", []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, fixed, info.LastModified)
}

func TestReturnedDataIsACopy(t *testing.T) {
	s := New("bkt")
	ctx := context.Background()
	body := []byte("abc")
	_, _ = s.Put(ctx, "bkt", "k", body, "")
	body[0] = 'z'

	obj, err := s.Get(ctx, "bkt", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(obj.Data))
}
