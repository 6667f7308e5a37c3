// Package storage keeps uploaded and translated subtitle files on the local
// filesystem or in an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".smi": true, ".vtt": true,
}

func IsSubtitleFile(name string) bool {
	return subtitleExtensions[strings.ToLower(filepath.Ext(name))]
}

// ContentType is the download media type for a subtitle file name.
func ContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".vtt") {
		return "text/vtt; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
