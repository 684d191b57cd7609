package util

import "strings"

// Storage key prefixes owned by the cache.
const (
	PagePrefix    = "page"
	ProductPrefix = "product"
)

// StorageKey returns "<prefix>:<ns>:<key>".
func StorageKey(prefix, ns, key string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(ns) + len(key) + 2)
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}
