// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockcrypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/corestore-go/corestore/internal/secret"
)

// KeySize is the length in bytes of a session encryption key and of
// every key derived from it.
const KeySize = 32

// BlockVersion is prefixed to every ciphertext produced by Encrypt, so
// a future incompatible scheme can be introduced without breaking the
// ability to recognize old blocks.
const BlockVersion byte = 0x01

// BlockOverhead is the number of bytes Encrypt adds beyond the
// plaintext length: one version byte, an XChaCha20-Poly1305 nonce, and
// its authentication tag.
const BlockOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	hkdfInfoBlockKey = []byte("corestore.blockcrypt.block-key.v1")
	referenceDomain  = []byte("corestore.blockcrypt.reference.v1")
)

// KeySet wraps a session-level encryption key and derives per-block
// keys and obscured references from it. A KeySet is bound to a single
// discovery key; callers replicating multiple cores hold one KeySet
// per core.
type KeySet struct {
	sessionKey   *secret.Buffer
	discoveryKey [32]byte
}

// NewKeySet copies sessionKey into a protected buffer and returns a
// KeySet scoped to discoveryKey. The caller retains ownership of
// sessionKey; NewKeySet does not close it.
func NewKeySet(sessionKey *secret.Buffer, discoveryKey [32]byte) (*KeySet, error) {
	if sessionKey.Len() != KeySize {
		return nil, fmt.Errorf("blockcrypt: session key must be %d bytes, got %d", KeySize, sessionKey.Len())
	}

	copied := make([]byte, KeySize)
	copy(copied, sessionKey.Bytes())
	protected, err := secret.NewFromBytes(copied)
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: protecting session key: %w", err)
	}

	return &KeySet{sessionKey: protected, discoveryKey: discoveryKey}, nil
}

// Close releases the KeySet's copy of the session key. Idempotent.
func (k *KeySet) Close() error {
	if k.sessionKey != nil {
		return k.sessionKey.Close()
	}
	return nil
}

// DeriveBlockKey derives the per-block key for blockIndex within the
// KeySet's discovery key via HKDF-SHA256. The returned buffer must be
// closed by the caller.
func (k *KeySet) DeriveBlockKey(blockIndex uint64) (*secret.Buffer, error) {
	return deriveKey(k.sessionKey, k.discoveryKey, blockIndex, hkdfInfoBlockKey, KeySize)
}

// Encrypt seals plaintext for blockIndex using a key derived fresh
// from the session key, and binds the ciphertext to this KeySet's
// discovery key and to blockIndex via the AEAD's associated data —
// a ciphertext produced for one core or position cannot be replayed
// as another's.
func (k *KeySet) Encrypt(plaintext []byte, blockIndex uint64) ([]byte, error) {
	blockKey, err := k.DeriveBlockKey(blockIndex)
	if err != nil {
		return nil, err
	}
	defer blockKey.Close()

	aead, err := chacha20poly1305.NewX(blockKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: constructing aead: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(hkdfRandReader(k.sessionKey, k.discoveryKey, blockIndex), nonce); err != nil {
		return nil, fmt.Errorf("blockcrypt: generating nonce: %w", err)
	}

	aad := buildAAD(k.discoveryKey, blockIndex)
	sealed := aead.Seal(nil, nonce, plaintext, aad)

	out := make([]byte, 0, BlockOverhead+len(plaintext))
	out = append(out, BlockVersion)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt for the same blockIndex, failing if the
// version byte is unrecognized or the AEAD tag does not verify.
func (k *KeySet) Decrypt(ciphertext []byte, blockIndex uint64) ([]byte, error) {
	if len(ciphertext) < BlockOverhead {
		return nil, fmt.Errorf("blockcrypt: ciphertext too short")
	}
	if ciphertext[0] != BlockVersion {
		return nil, fmt.Errorf("blockcrypt: unsupported block version %d", ciphertext[0])
	}

	blockKey, err := k.DeriveBlockKey(blockIndex)
	if err != nil {
		return nil, err
	}
	defer blockKey.Close()

	aead, err := chacha20poly1305.NewX(blockKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: constructing aead: %w", err)
	}

	nonce := ciphertext[1 : 1+chacha20poly1305.NonceSizeX]
	sealed := ciphertext[1+chacha20poly1305.NonceSizeX:]
	aad := buildAAD(k.discoveryKey, blockIndex)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: authentication failed: %w", err)
	}
	return plaintext, nil
}

// ObscuredReference derives a stable, non-reversible identifier for
// blockIndex, suitable for use as a lookup key in storage that should
// not itself reveal the discovery key or block position to an
// observer without the session key.
func (k *KeySet) ObscuredReference(blockIndex uint64) [32]byte {
	return obscureReference(k.sessionKey, k.discoveryKey, blockIndex)
}

// deriveKey runs HKDF-SHA256 with sessionKey as the input key material,
// no salt, and info as the context info, and returns size derived bytes wrapped in a
// secret.Buffer. discoveryKey and blockIndex are folded into info so
// every (core, position) pair gets an independent key even under the
// same session key.
func deriveKey(sessionKey *secret.Buffer, discoveryKey [32]byte, blockIndex uint64, info []byte, size int) (*secret.Buffer, error) {
	fullInfo := make([]byte, 0, len(info)+len(discoveryKey)+8)
	fullInfo = append(fullInfo, info...)
	fullInfo = append(fullInfo, discoveryKey[:]...)
	fullInfo = appendUint64(fullInfo, blockIndex)

	reader := hkdf.New(sha256.New, sessionKey.Bytes(), nil, fullInfo)
	derived := make([]byte, size)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("blockcrypt: deriving key: %w", err)
	}

	return secret.NewFromBytes(derived)
}

// hkdfRandReader produces a deterministic-per-block, unpredictable
// stream used only to fill the encryption nonce. Reusing an HKDF
// stream keyed distinctly from the block key itself keeps nonce
// generation independent of the AEAD key derivation.
func hkdfRandReader(sessionKey *secret.Buffer, discoveryKey [32]byte, blockIndex uint64) io.Reader {
	info := make([]byte, 0, len(hkdfInfoBlockKey)+len(discoveryKey)+8+len("nonce"))
	info = append(info, hkdfInfoBlockKey...)
	info = append(info, "nonce"...)
	info = append(info, discoveryKey[:]...)
	info = appendUint64(info, blockIndex)
	return hkdf.New(sha256.New, sessionKey.Bytes(), nil, info)
}

// obscureReference computes a BLAKE3 keyed hash of discoveryKey and
// blockIndex, using sessionKey as the hash key.
func obscureReference(sessionKey *secret.Buffer, discoveryKey [32]byte, blockIndex uint64) [32]byte {
	keyBytes := make([]byte, 32)
	copy(keyBytes, sessionKey.Bytes())

	hasher, err := blake3.NewKeyed(keyBytes)
	if err != nil {
		// blake3.NewKeyed only fails on a wrong-length key, and
		// sessionKey is always exactly 32 bytes by construction.
		panic(fmt.Sprintf("blockcrypt: blake3.NewKeyed: %v", err))
	}
	hasher.Write(referenceDomain)
	hasher.Write(discoveryKey[:])
	hasher.Write(appendUint64(nil, blockIndex))

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// buildAAD binds a block's ciphertext to its discovery key and index.
func buildAAD(discoveryKey [32]byte, blockIndex uint64) []byte {
	aad := make([]byte, 0, 1+len(discoveryKey)+8)
	aad = append(aad, BlockVersion)
	aad = append(aad, discoveryKey[:]...)
	aad = appendUint64(aad, blockIndex)
	return aad
}

func appendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (56 - 8*i))
	}
	return append(dst, buf[:]...)
}
