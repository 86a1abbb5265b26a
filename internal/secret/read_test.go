// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFromPath_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  age-secret-key-1abc\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "age-secret-key-1abc" {
		t.Fatalf("String() = %q, want trimmed content", got)
	}
}

func TestReadFromPath_MissingFile(t *testing.T) {
	_, err := ReadFromPath(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestReadFromPath_EmptyFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := ReadFromPath(path)
	if err == nil {
		t.Fatal("expected an error for a whitespace-only file")
	}
}

func TestReadFromPath_Stdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}

	original := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = original }()

	if _, err := w.WriteString("stdin-secret\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	w.Close()

	buffer, err := ReadFromPath("-")
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "stdin-secret" {
		t.Fatalf("String() = %q, want %q", got, "stdin-secret")
	}
}
