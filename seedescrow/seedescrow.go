// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedescrow

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/corestore-go/corestore/internal/secret"
)

// SeedSize is the length in bytes of a corestore master seed.
const SeedSize = 32

// Keypair holds an age x25519 keypair used to encrypt and decrypt
// escrowed seeds. The private key lives in a secret.Buffer (mmap-backed,
// locked against swap, zeroed on Close).
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding age1... recipient string, safe to
	// publish and hand to Seal.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair for seed escrow.
// The caller must Close the returned Keypair when done with it.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("seedescrow: generating age keypair: %w", err)
	}

	privateKeyBytes := []byte(identity.String())
	privateKey, err := secret.NewFromBytes(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: protecting private key: %w", err)
	}

	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// Seal encrypts primaryKey (a corestore master seed, or any other
// secret.Buffer of comparable size) to one or more recipient public
// keys (age1... format), returning base64-encoded ciphertext suitable
// for writing to any durable off-site store. At least one recipient is
// required; passing the operator's key alongside a secondary escrow
// key is the common case.
func Seal(primaryKey *secret.Buffer, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("seedescrow: at least one recipient is required")
	}

	parsed := make([]age.Recipient, 0, len(recipients))
	for _, key := range recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("seedescrow: parsing recipient key %q: %w", key, err)
		}
		parsed = append(parsed, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, parsed...)
	if err != nil {
		return "", fmt.Errorf("seedescrow: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(primaryKey.Bytes()); err != nil {
		return "", fmt.Errorf("seedescrow: writing seed to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("seedescrow: finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts a base64-encoded ciphertext produced by Seal using
// privateKey, returning the recovered seed in a secret.Buffer. The
// caller must Close the returned buffer when done with it. privateKey
// is borrowed, not closed.
func Open(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("seedescrow: parsing private key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: reading decrypted seed: %w", err)
	}
	if len(plaintext) == 0 {
		return secret.New(1)
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: protecting decrypted seed: %w", err)
	}
	return buffer, nil
}

// OpenFromPath is Open for the common recovery-tool shape: the
// operator's age private key lives at keyPath (or is read from stdin
// when keyPath is "-") rather than already being in memory, so it
// never has to appear as a command-line argument.
func OpenFromPath(ciphertext string, keyPath string) (*secret.Buffer, error) {
	privateKey, err := secret.ReadFromPath(keyPath)
	if err != nil {
		return nil, fmt.Errorf("seedescrow: reading private key from %s: %w", keyPath, err)
	}
	defer privateKey.Close()

	return Open(ciphertext, privateKey)
}
