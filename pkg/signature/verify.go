package signature

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/accordsai/negotiation/pkg/canonhash"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidIssuedAt      = errors.New("invalid issued_at")
	ErrPayloadHashMismatch  = errors.New("payload hash mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrContextMismatch      = errors.New("signature context mismatch")
)

type VerifyResult struct {
	IssuedAt time.Time
}

// SignEd25519 hashes payload canonically and signs the 32 byte digest.
func SignEd25519(payload any, priv ed25519.PrivateKey, issuedAt time.Time, context string) (Envelope, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Envelope{}, errors.New("ed25519 private key is required")
	}
	issuedAtUTC := issuedAt.UTC()
	if issuedAtUTC.IsZero() {
		return Envelope{}, errors.New("issued_at is required")
	}
	hashHex, _, err := canonhash.CanonicalSHA256(payload)
	if err != nil {
		return Envelope{}, err
	}
	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		Version:     Version,
		Algorithm:   Algorithm,
		PublicKey:   base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)),
		Signature:   base64.StdEncoding.EncodeToString(ed25519.Sign(priv, hashBytes)),
		PayloadHash: hashHex,
		IssuedAt:    issuedAtUTC.Format(time.RFC3339Nano),
	}
	if strings.TrimSpace(context) != "" {
		env.Context = strings.TrimSpace(context)
	}
	return env, nil
}

// VerifyEnvelope checks env against the canonical hash of payload.
func VerifyEnvelope(payload any, env Envelope) (VerifyResult, error) {
	expectedHashHex, _, err := canonhash.CanonicalSHA256(payload)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyPrehashed(expectedHashHex, env)
}

// VerifyContext is VerifyEnvelope that also pins the signing context.
func VerifyContext(payload any, env Envelope, context string) (VerifyResult, error) {
	if strings.TrimSpace(env.Context) != context {
		return VerifyResult{}, ErrContextMismatch
	}
	return VerifyEnvelope(payload, env)
}

// VerifyPrehashed checks env against an already computed hex payload hash.
func VerifyPrehashed(expectedHashHex string, env Envelope) (VerifyResult, error) {
	if strings.TrimSpace(env.Version) != Version {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	if strings.TrimSpace(env.IssuedAt) == "" {
		return VerifyResult{}, ErrInvalidIssuedAt
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, env.IssuedAt)
	if err != nil {
		return VerifyResult{}, ErrInvalidIssuedAt
	}
	if !strings.HasSuffix(env.IssuedAt, "Z") || !issuedAt.Equal(issuedAt.UTC()) {
		return VerifyResult{}, ErrInvalidIssuedAt
	}

	expectedHashBytes, err := hex.DecodeString(expectedHashHex)
	if err != nil {
		return VerifyResult{}, ErrInvalidEncoding
	}
	payloadHashBytes, err := decodeLowerHex32(strings.TrimSpace(env.PayloadHash))
	if err != nil {
		return VerifyResult{}, err
	}
	if subtle.ConstantTimeCompare(expectedHashBytes, payloadHashBytes) != 1 {
		return VerifyResult{}, ErrPayloadHashMismatch
	}

	if strings.ToLower(strings.TrimSpace(env.Algorithm)) != Algorithm {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	if err := verifyEd25519(payloadHashBytes, env.PublicKey, env.Signature); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{IssuedAt: issuedAt.UTC()}, nil
}

func verifyEd25519(messageHash []byte, publicKeyB64, sigB64 string) error {
	publicKey, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKeyB64))
	if err != nil {
		return ErrInvalidEncoding
	}
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigB64))
	if err != nil {
		return ErrInvalidEncoding
	}
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return ErrInvalidEncoding
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), messageHash, signature) {
		return ErrInvalidSignature
	}
	return nil
}

func decodeLowerHex32(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrInvalidEncoding
	}
	if s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: payload_hash length", ErrInvalidEncoding)
	}
	return b, nil
}
