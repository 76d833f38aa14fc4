// Package fingerprint derives a change-detection key for a channel's video list.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Item is the part of a video that contributes to the fingerprint.
type Item struct {
	ID          string
	PublishedAt string
}

// Videos returns the hex SHA-256 of the sorted "id|published_at" pairs joined
// by "||". An empty published_at is rendered as "unknown". The result does not
// depend on input order.
func Videos(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		published := it.PublishedAt
		if published == "" {
			published = "unknown"
		}
		parts = append(parts, it.ID+"|"+published)
	}
	sort.Strings(parts)

	h := sha256.Sum256([]byte(strings.Join(parts, "||")))
	return hex.EncodeToString(h[:])
}
