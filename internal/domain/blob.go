package domain

import (
	"context"
	"io"
)

// BlobInfo is one archived object. Listings are ordered by Path.
type BlobInfo struct {
	Path string
	Size int64
}

// BlobWriter stores archive objects. Put suits event batches; PutMultipart
// streams snapshots that may exceed one request.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads archive objects back for replay.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
