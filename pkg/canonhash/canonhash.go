package canonhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const prefix = "sha256:"

// Canonical returns the canonical JSON encoding of v: object keys sorted,
// no insignificant whitespace, numbers kept as written. A struct and a map
// carrying the same fields encode identically.
func Canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// SumObject is CanonicalSHA256 with a "sha256:" prefix.
func SumObject(v any) (string, []byte, error) {
	h, b, err := CanonicalSHA256(v)
	if err != nil {
		return "", nil, err
	}
	return prefix + h, b, nil
}

// CanonicalSHA256 returns the lowercase hex SHA-256 of the canonical
// encoding of v, along with those bytes.
func CanonicalSHA256(v any) (hexHash string, canonical []byte, err error) {
	b, err := Canonical(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// StripPrefix returns the bare hex digest of a SumObject result.
func StripPrefix(h string) string {
	return strings.TrimPrefix(h, prefix)
}

// IsHexSHA256 reports whether s is a 64 character lowercase hex digest.
func IsHexSHA256(s string) bool {
	if len(s) != 2*sha256.Size || s != strings.ToLower(s) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
