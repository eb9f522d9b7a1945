package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

// Storage archives finalized documents below one directory. All file
// operations go through an os.Root so symlinks cannot lead outside it.
type Storage struct {
	root *os.Root
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/archive"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("open archive dir: %w", err)
	}
	return &Storage{root: root}, nil
}

func (s *Storage) Close() error {
	return s.root.Close()
}

// objectPath turns a slash separated key into a root-relative path.
func objectPath(key string) (string, error) {
	name := path.Clean(strings.TrimLeft(key, "/"))
	if name == "." || !fs.ValidPath(name) {
		return "", domain.NewError(domain.ErrInvalidInput, "archive key", key)
	}
	return name, nil
}

// Save streams into a hidden sibling file and renames it into place, so a
// reader sees either nothing or the complete document.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	name, err := objectPath(key)
	if err != nil {
		return err
	}
	if dir := path.Dir(name); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive subdir: %w", err)
		}
	}

	partial := path.Join(path.Dir(name), ".partial-"+uuid.NewString())
	f, err := s.root.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	_, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = s.root.Remove(partial)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := s.root.Rename(partial, name); err != nil {
		_ = s.root.Remove(partial)
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	name, err := objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := s.root.Open(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, domain.WrapError(domain.ErrNotFound, "open archived document", err)
	case err != nil:
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}
