package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/accordsai/negotiation/pkg/canonhash"
)

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func TestSignAndVerifyEnvelope_HappyPath(t *testing.T) {
	pub, priv := newKey(t)
	payload := map[string]any{"negotiation_id": "n-1", "amount": "100"}
	env, err := SignEd25519(payload, priv, time.Now(), "negotiation-tx")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}
	if env.PublicKey != base64.StdEncoding.EncodeToString(pub) {
		t.Fatalf("unexpected public key %q", env.PublicKey)
	}
	got, err := VerifyEnvelope(payload, env)
	if err != nil {
		t.Fatalf("VerifyEnvelope: %v", err)
	}
	if !got.IssuedAt.Equal(got.IssuedAt.UTC()) {
		t.Fatalf("expected UTC issuedAt")
	}
	if _, err := VerifyContext(payload, env, "negotiation-tx"); err != nil {
		t.Fatalf("VerifyContext: %v", err)
	}
}

func TestVerifyContext_Mismatch(t *testing.T) {
	_, priv := newKey(t)
	payload := map[string]any{"a": 1}
	env, err := SignEd25519(payload, priv, time.Now(), "peer-request")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}
	if _, err := VerifyContext(payload, env, "negotiation-tx"); !errors.Is(err, ErrContextMismatch) {
		t.Fatalf("expected ErrContextMismatch, got %v", err)
	}
}

func TestVerifyEnvelope_TamperedPayload(t *testing.T) {
	_, priv := newKey(t)
	env, err := SignEd25519(map[string]any{"amount": "100"}, priv, time.Now(), "")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}
	_, err = VerifyEnvelope(map[string]any{"amount": "120"}, env)
	if !errors.Is(err, ErrPayloadHashMismatch) {
		t.Fatalf("expected ErrPayloadHashMismatch, got %v", err)
	}
}

func TestVerifyEnvelope_WrongKey(t *testing.T) {
	_, priv := newKey(t)
	other, _ := newKey(t)
	payload := map[string]any{"a": 1}
	env, err := SignEd25519(payload, priv, time.Now(), "")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}
	env.PublicKey = base64.StdEncoding.EncodeToString(other)
	if _, err := VerifyEnvelope(payload, env); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEnvelope_UnsupportedAlgorithm(t *testing.T) {
	payload := map[string]any{"a": 1}
	hashHex, _, _ := canonhash.CanonicalSHA256(payload)
	env := Envelope{
		Version:     Version,
		Algorithm:   "rsa-pss-sha256",
		PublicKey:   "x",
		Signature:   "y",
		PayloadHash: hashHex,
		IssuedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err := VerifyEnvelope(payload, env)
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestVerifyEnvelope_InvalidIssuedAt(t *testing.T) {
	_, priv := newKey(t)
	payload := map[string]any{"a": 1}
	env, err := SignEd25519(payload, priv, time.Now(), "")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}

	for _, issuedAt := range []string{"", "yesterday", "2026-01-02T03:04:05+02:00"} {
		bad := env
		bad.IssuedAt = issuedAt
		if _, err := VerifyEnvelope(payload, bad); !errors.Is(err, ErrInvalidIssuedAt) {
			t.Fatalf("issued_at %q: expected ErrInvalidIssuedAt, got %v", issuedAt, err)
		}
	}
}

func TestVerifyEnvelope_InvalidEncoding(t *testing.T) {
	_, priv := newKey(t)
	payload := map[string]any{"a": 1}
	env, err := SignEd25519(payload, priv, time.Now(), "")
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}

	upper := env
	upper.PayloadHash = "A" + env.PayloadHash[1:]
	if _, err := VerifyEnvelope(payload, upper); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for uppercase hash, got %v", err)
	}

	badSig := env
	badSig.Signature = "%%%"
	if _, err := VerifyEnvelope(payload, badSig); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for bad signature, got %v", err)
	}

	shortKey := env
	shortKey.PublicKey = base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := VerifyEnvelope(payload, shortKey); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for short key, got %v", err)
	}
}

func TestSignEd25519_RejectsBadKey(t *testing.T) {
	if _, err := SignEd25519(map[string]any{}, ed25519.PrivateKey("nope"), time.Now(), ""); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}
