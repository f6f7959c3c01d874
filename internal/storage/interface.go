package storage

import (
	"context"
	"fmt"
)

// ImageStore persists normalized images for the analysis archive.
type ImageStore interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Exists reports whether key is already stored.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public address of key, or "" when none is configured.
	URL(key string) string
}

// ObjectKey shards objects by the first two hex characters of their hash.
func ObjectKey(md5Hex, ext string) string {
	if len(md5Hex) < 2 {
		return md5Hex + ext
	}
	return fmt.Sprintf("%s/%s%s", md5Hex[:2], md5Hex, ext)
}
