package objectstore

import (
	"sort"
	"strings"
)

// GroupByDelimiter turns a flat, prefix-filtered set of objects into one
// listing level, the way S3 does for ListObjectsV2 with a delimiter: keys
// with no delimiter after the prefix are items, the rest collapse into the
// common prefix ending at their first delimiter. An empty delimiter returns
// every object as an item. Output is sorted by key.
func GroupByDelimiter(prefix, delimiter string, objects []ObjectInfo) *ListResult {
	result := &ListResult{}
	seen := make(map[string]bool)

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		if delimiter == "" {
			result.Items = append(result.Items, obj)
			continue
		}

		rest := obj.Key[len(prefix):]
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			result.Items = append(result.Items, obj)
			continue
		}

		common := prefix + rest[:idx+len(delimiter)]
		if !seen[common] {
			seen[common] = true
			result.CommonPrefixes = append(result.CommonPrefixes, common)
		}
	}

	sort.Slice(result.Items, func(i, j int) bool { return result.Items[i].Key < result.Items[j].Key })
	sort.Strings(result.CommonPrefixes)
	return result
}
