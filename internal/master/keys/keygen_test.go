package keys

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/thaispalmer/yn-automation/internal/common"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy") }

func TestGenerate_ParsableKeyPair(t *testing.T) {
	pair, err := Generate("alice")
	require.NoError(t, err)

	signer, err := ssh.ParsePrivateKey(pair.Private)
	require.NoError(t, err)

	pub, comment, _, _, err := ssh.ParseAuthorizedKey(pair.Public)
	require.NoError(t, err)
	assert.Equal(t, "YourNode deploy key for alice", comment)
	assert.Equal(t, ssh.KeyAlgoED25519, pub.Type())
	assert.True(t, bytes.Equal(signer.PublicKey().Marshal(), pub.Marshal()))
	assert.True(t, strings.HasSuffix(string(pair.Public), "\n"))
}

func TestGenerate_DistinctKeys(t *testing.T) {
	a, err := Generate("alice")
	require.NoError(t, err)
	b, err := Generate("alice")
	require.NoError(t, err)
	assert.NotEqual(t, a.Public, b.Public)
}

func TestGenerate_EntropyFailure(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = orig })

	_, err := Generate("alice")
	assert.True(t, errors.Is(err, common.ErrKeyGeneration))
}
