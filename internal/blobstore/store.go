package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
)

// Store is the blob sink capability set. All writes are idempotent:
// re-uploading a key overwrites the prior object. The sink never performs
// read-modify-write on its own; metadata mutation is the caller's contract.
type Store interface {
	// PutImage uploads a local image file under the given key.
	PutImage(ctx context.Context, localPath, key string) error

	// PutJSON marshals v as indented UTF-8 JSON and uploads it.
	PutJSON(ctx context.Context, key string, v any) error

	// GetJSON downloads the object at key and unmarshals it into v.
	GetJSON(ctx context.Context, key string, v any) error

	// GetObject downloads the raw bytes stored under key.
	GetObject(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Bucket returns the configured bucket name.
	Bucket() string
}

// marshalJSON renders metadata documents: UTF-8, 2-space indentation. Struct
// field order is fixed by the type definitions, giving stable key order.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
