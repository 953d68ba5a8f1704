package keys

import (
	"context"
	"fmt"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/cryptox"
)

// SealedStore encrypts private keys before they reach the wrapped store.
// Public keys are stored as is. Private keys written before sealing was
// turned on are returned unchanged.
type SealedStore struct {
	inner      Store
	passphrase []byte
}

var _ Store = (*SealedStore)(nil)

// NewSealedStore wraps inner so private keys are encrypted with passphrase.
func NewSealedStore(inner Store, passphrase string) *SealedStore {
	return &SealedStore{inner: inner, passphrase: []byte(passphrase)}
}

func (s *SealedStore) Put(ctx context.Context, username string, pair common.KeyPair) error {
	sealed, err := cryptox.Seal(s.passphrase, pair.Private)
	if err != nil {
		return fmt.Errorf("keys: seal: %w", err)
	}
	return s.inner.Put(ctx, username, common.KeyPair{Private: sealed, Public: pair.Public})
}

func (s *SealedStore) Get(ctx context.Context, username string) (common.KeyPair, error) {
	pair, err := s.inner.Get(ctx, username)
	if err != nil {
		return common.KeyPair{}, err
	}
	if !cryptox.IsSealed(pair.Private) {
		return pair, nil
	}

	plain, err := cryptox.Open(s.passphrase, pair.Private)
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("keys: %s: %w", username, err)
	}
	return common.KeyPair{Private: plain, Public: pair.Public}, nil
}
