package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func keysOf(items []ObjectInfo) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	return keys
}

func TestGroupByDelimiter(t *testing.T) {
	objects := []ObjectInfo{
		{Key: "a/2.txt"},
		{Key: "a/1.txt"},
		{Key: "a/"},
		{Key: "a/sub/x"},
		{Key: "a/sub/y"},
		{Key: "a/other/"},
		{Key: "b/z"},
	}

	res := GroupByDelimiter("a/", "/", objects)
	assert.Equal(t, []string{"a/", "a/1.txt", "a/2.txt"}, keysOf(res.Items))
	assert.Equal(t, []string{"a/other/", "a/sub/"}, res.CommonPrefixes)
}

func TestGroupByDelimiterRoot(t *testing.T) {
	res := GroupByDelimiter("", "/", []ObjectInfo{{Key: "top"}, {Key: "d/x"}, {Key: "d/y"}})
	assert.Equal(t, []string{"top"}, keysOf(res.Items))
	assert.Equal(t, []string{"d/"}, res.CommonPrefixes)
}

func TestGroupByDelimiterRecursive(t *testing.T) {
	res := GroupByDelimiter("a/", "", []ObjectInfo{{Key: "a/sub/x"}, {Key: "a/1"}, {Key: "b"}})
	assert.Equal(t, []string{"a/1", "a/sub/x"}, keysOf(res.Items))
	assert.Empty(t, res.CommonPrefixes)
}
