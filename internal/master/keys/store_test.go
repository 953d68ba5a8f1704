package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/filex"
)

func TestFileStore_PutGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	s := NewFileStore(dir, filex.OS{})
	ctx := context.Background()
	pair := common.KeyPair{Private: []byte("PRIV"), Public: []byte("PUB\n")}

	require.NoError(t, s.Put(ctx, "alice", pair))

	info, err := os.Stat(filepath.Join(dir, "alice"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pair, got)
}

func TestFileStore_GetMissing(t *testing.T) {
	s := NewFileStore(t.TempDir(), filex.OS{})
	_, err := s.Get(context.Background(), "nobody")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestFileStore_GetMissingPublicHalf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice"), []byte("PRIV"), 0o600))

	_, err := NewFileStore(dir, filex.OS{}).Get(context.Background(), "alice")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}
