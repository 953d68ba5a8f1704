// Package keys generates per-user deploy keys and keeps them in a file or
// S3 backed store until they are shipped to a shard.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/thaispalmer/yn-automation/internal/common"
)

var randReader io.Reader = rand.Reader

// Comment is the comment embedded in a user's deploy key.
func Comment(username string) string {
	return "YourNode deploy key for " + username
}

// Generate creates an ed25519 deploy key pair. The private half is an
// OpenSSH PEM block and the public half an authorized_keys line.
func Generate(username string) (common.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(randReader)
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("%w: %w", common.ErrKeyGeneration, err)
	}

	block, err := ssh.MarshalPrivateKey(priv, Comment(username))
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("%w: %w", common.ErrKeyGeneration, err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("%w: %w", common.ErrKeyGeneration, err)
	}
	line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshPub)), "\n")

	return common.KeyPair{
		Private: pem.EncodeToMemory(block),
		Public:  []byte(line + " " + Comment(username) + "\n"),
	}, nil
}
