package storage

import (
	"context"
	"io"
)

// UploadResult describes a stored object. Location is its public URL.
type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader writes objects to an S3 compatible bucket. Keys are relative
// to the bucket root, for example "results/<game_id>.json".
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	// GetPublicURL does not check that the object exists.
	GetPublicURL(key string) string
}
