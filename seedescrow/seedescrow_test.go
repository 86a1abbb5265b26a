// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedescrow

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corestore-go/corestore/internal/secret"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey = %q, want prefix AGE-SECRET-KEY-1", keypair.PrivateKey.String())
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	seedBytes := make([]byte, SeedSize)
	for i := range seedBytes {
		seedBytes[i] = byte(i)
	}
	seed, err := secret.NewFromBytes(seedBytes)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer seed.Close()

	ciphertext, err := Seal(seed, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		t.Errorf("Seal returned invalid base64: %v", err)
	}

	recovered, err := Open(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer recovered.Close()

	if recovered.Len() != SeedSize {
		t.Fatalf("recovered length = %d, want %d", recovered.Len(), SeedSize)
	}
	for i, b := range recovered.Bytes() {
		if b != byte(i) {
			t.Fatalf("recovered byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

func TestSealMultipleRecipientsEachCanOpen(t *testing.T) {
	machine, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer machine.Close()
	operator, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer operator.Close()

	seed, err := secret.NewFromBytes(make([]byte, SeedSize))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer seed.Close()

	ciphertext, err := Seal(seed, []string{machine.PublicKey, operator.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	for _, recipient := range []*Keypair{machine, operator} {
		recovered, err := Open(ciphertext, recipient.PrivateKey)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		recovered.Close()
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	wrong, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer wrong.Close()

	seed, err := secret.NewFromBytes(make([]byte, SeedSize))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer seed.Close()

	ciphertext, err := Seal(seed, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(ciphertext, wrong.PrivateKey); err == nil {
		t.Fatal("Open with wrong private key should fail")
	}
}

func TestSealRequiresRecipients(t *testing.T) {
	seed, err := secret.NewFromBytes(make([]byte, SeedSize))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer seed.Close()

	if _, err := Seal(seed, nil); err == nil {
		t.Fatal("Seal with no recipients should fail")
	}
}

func TestOpenRejectsInvalidBase64(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if _, err := Open("not-valid-base64!!!", keypair.PrivateKey); err == nil {
		t.Fatal("Open with invalid base64 should fail")
	}
}

func TestOpenFromPathRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	seed, err := secret.NewFromBytes(make([]byte, SeedSize))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer seed.Close()

	ciphertext, err := Seal(seed, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "operator.key")
	if err := os.WriteFile(path, []byte(keypair.PrivateKey.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	recovered, err := OpenFromPath(ciphertext, path)
	if err != nil {
		t.Fatalf("OpenFromPath: %v", err)
	}
	defer recovered.Close()

	if recovered.Len() != SeedSize {
		t.Fatalf("recovered length = %d, want %d", recovered.Len(), SeedSize)
	}
}

func TestOpenFromPathMissingKeyFile(t *testing.T) {
	if _, err := OpenFromPath("irrelevant", filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected an error for a missing key file")
	}
}
