// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and SHA-256 content hashing. Rule-set snapshot hashes and
// evaluation hashes are computed here so that identical inputs always hash
// identically regardless of map iteration order or encoder quirks.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
// v is marshaled with encoding/json first so struct tags are respected,
// then transformed to canonical form.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the "sha256:<hex>" digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the "sha256:<hex>" digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
