package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads archive objects. PutMultipart is used for batches
// large enough to need a multipart upload.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves audit rows older than before into object storage and
// reports how many rows left the database.
type Archiver interface {
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
