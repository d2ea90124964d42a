package storage

import (
	"context"
	"io"
)

// Storage holds result spreadsheets and generated reports. Download of a
// missing key fails with errors.ErrObjectNotFound.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
}

var (
	_ Storage = (*S3Storage)(nil)
	_ Storage = (*LocalStorage)(nil)
)
