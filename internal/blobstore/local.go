package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local writes blobs to a directory tree rooted at a base path, mirroring
// the key layout. Used when no hosted object store is configured so local
// runs still produce inspectable artifacts.
type Local struct {
	root   string
	bucket string
}

// NewLocal creates a filesystem-backed store under root.
func NewLocal(root, bucket string) *Local {
	return &Local{root: root, bucket: bucket}
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) PutImage(_ context.Context, localPath, key string) error {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func (l *Local) PutJSON(_ context.Context, key string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (l *Local) GetJSON(_ context.Context, key string, v any) error {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return fmt.Errorf("object not found: %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

func (l *Local) GetObject(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("object not found: %s: %w", key, err)
	}
	return data, nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) Bucket() string { return l.bucket }
