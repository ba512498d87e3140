// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// HashFileBLAKE3 computes the 32-byte BLAKE3 digest of the file at
// path.
func HashFileBLAKE3(path string) ([32]byte, error) {
	return hashFile(path, blake3.New())
}

// HashReader streams reader through SHA-256 and returns the digest and
// the number of bytes consumed.
func HashReader(reader io.Reader) ([32]byte, int64, error) {
	hasher := sha256.New()
	written, err := io.Copy(hasher, reader)
	if err != nil {
		return [32]byte{}, written, err
	}
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, written, nil
}

func hashFile(path string, hasher hash.Hash) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(hasher, file); err != nil {
		return [32]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the lowercase hex encoding of a digest.
func FormatDigest(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a hex-encoded 32-byte digest. Upper-case hex, as
// some publishers print it, is accepted.
func ParseDigest(hexString string) ([32]byte, error) {
	var digest [32]byte
	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(hexString)))
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("hash digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}
