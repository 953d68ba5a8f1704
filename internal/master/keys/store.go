package keys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/filex"
)

// Store keeps deploy keys by username.
type Store interface {
	Put(ctx context.Context, username string, pair common.KeyPair) error
	// Get returns common.ErrorNotFound when the user has no keys.
	Get(ctx context.Context, username string) (common.KeyPair, error)
}

// FileStore writes <dir>/<username> (0600) and <dir>/<username>.pub.
type FileStore struct {
	dir string
	fs  filex.Filesystem
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string, fsys filex.Filesystem) *FileStore {
	return &FileStore{dir: dir, fs: fsys}
}

func (s *FileStore) paths(username string) (string, string) {
	priv := filepath.Join(s.dir, username)
	return priv, priv + ".pub"
}

func (s *FileStore) Put(_ context.Context, username string, pair common.KeyPair) error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	priv, pub := s.paths(username)
	if err := s.fs.WriteFile(priv, pair.Private, 0o600); err != nil {
		return fmt.Errorf("keys: write private key: %w", err)
	}
	if err := s.fs.WriteFile(pub, pair.Public, 0o644); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, username string) (common.KeyPair, error) {
	priv, pub := s.paths(username)

	privData, err := s.fs.ReadFile(priv)
	if err != nil {
		return common.KeyPair{}, notFound(err)
	}
	pubData, err := s.fs.ReadFile(pub)
	if err != nil {
		common.WipeByteArray(privData)
		return common.KeyPair{}, notFound(err)
	}
	return common.KeyPair{Private: privData, Public: pubData}, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("keys: %w", common.ErrorNotFound)
	}
	return fmt.Errorf("keys: %w", err)
}
