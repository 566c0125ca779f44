package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// flattenTree returns the leaves of a document keyed by dotted path. Null
// leaves and empty tables are dropped so they fall back to defaults.
func flattenTree(tree map[string]any) map[string]any {
	leaves := make(map[string]any)
	flattenInto(leaves, "", tree)
	return leaves
}

func flattenInto(leaves map[string]any, prefix string, tree map[string]any) {
	for key, value := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch v := value.(type) {
		case nil:
			continue
		case map[string]any:
			flattenInto(leaves, path, v)
		default:
			leaves[path] = v
		}
	}
}

// mergeTree copies src into dst. Tables merge recursively, everything else
// (lists included) replaces what dst held.
func mergeTree(dst, src map[string]any) {
	for key, value := range src {
		if value == nil {
			continue
		}
		srcTable, srcIsTable := value.(map[string]any)
		dstTable, dstIsTable := dst[key].(map[string]any)
		if srcIsTable && dstIsTable {
			mergeTree(dstTable, srcTable)
			continue
		}
		if srcIsTable {
			copied := make(map[string]any, len(srcTable))
			mergeTree(copied, srcTable)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

// setPath writes value at path, creating intermediate tables.
func setPath(tree map[string]any, path []string, value any) error {
	node := tree
	for i, key := range path[:len(path)-1] {
		next, ok := node[key]
		if !ok || next == nil {
			child := make(map[string]any)
			node[key] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a table", strings.Join(path[:i+1], "."))
		}
		node = child
	}
	node[path[len(path)-1]] = value
	return nil
}

// popKey removes key from tree, matching it case-insensitively.
func popKey(tree map[string]any, key string) (any, bool) {
	for k, v := range tree {
		if strings.EqualFold(k, key) {
			delete(tree, k)
			return v, true
		}
	}
	return nil, false
}

// normalizeTree round-trips a tree through YAML so values decoded from any
// format end up with the same Go types.
func normalizeTree(tree map[string]any) (map[string]any, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	normalized := make(map[string]any)
	if err := yaml.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// toTree converts a tagged struct into a generic tree with YAML key names.
func toTree(value any) (map[string]any, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, err
	}
	tree := make(map[string]any)
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// formatLeaf renders a leaf value as a flat string parameter.
func formatLeaf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatLeaf(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

// SortedKeys returns the keys of a flattened parameter map in order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
