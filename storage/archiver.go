package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// Archiver is the durable object store the ledger mirror writes its
// record snapshots to. Records are append-only; nothing ever deletes one.
type Archiver interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	GetPublicURL(key string) string
}
