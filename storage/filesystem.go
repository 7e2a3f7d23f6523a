package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	auth "github.com/goliatone/go-fhir-auth"
	goerrors "github.com/goliatone/go-errors"
)

// FileSystemStore keeps binary content under a base directory, one file
// per content key.
type FileSystemStore struct {
	baseDir string
}

var _ auth.ContentStore = (*FileSystemStore)(nil)

// NewFileSystemStore returns a store rooted at baseDir.
func NewFileSystemStore(baseDir string) *FileSystemStore {
	return &FileSystemStore{baseDir: filepath.Clean(baseDir)}
}

func (s *FileSystemStore) ReadBinary(ctx context.Context, binary *auth.Binary, w io.Writer) (int64, error) {
	path, err := s.path(auth.BinaryContentKey(binary))
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, auth.NewNotFoundError("Binary", binary.ID).
				WithMetadata(map[string]any{"key": auth.BinaryContentKey(binary)})
		}
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open binary content")
	}
	defer f.Close()

	return io.Copy(w, &contextReader{ctx: ctx, r: f})
}

// WriteBinary writes to a temporary file and renames it into place so
// readers never observe partial content.
func (s *FileSystemStore) WriteBinary(ctx context.Context, binary *auth.Binary, r io.Reader) (int64, error) {
	path, err := s.path(auth.BinaryContentKey(binary))
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create binary directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create binary file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return n, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to write binary content")
	}
	if err := tmp.Close(); err != nil {
		return n, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to flush binary content")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to commit binary content")
	}
	return n, nil
}

func (s *FileSystemStore) path(key string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", auth.NewValidationError("binary key escapes storage directory").
			WithMetadata(map[string]any{"key": key})
	}
	return path, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
