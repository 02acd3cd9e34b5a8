package object

import (
	"context"
	"io"
)

// Location identifies where an object was written.
type Location struct {
	Region string
	Bucket string
	Key    string
}

// ObjectStore defines the contract for saving and retrieving binary objects.
// Put overwrites any existing object stored under the same key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (Location, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
