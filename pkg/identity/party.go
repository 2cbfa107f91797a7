package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/accordsai/negotiation/pkg/signature"
)

const (
	agentIDPrefix = "agent:pk:ed25519:"
	ed25519PubLen = 32
)

// Party is a ledger identity: an ed25519 key plus the well-known name it is
// registered under. Parties are compared by key.
type Party struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

func NewParty(name string, pub ed25519.PublicKey) (Party, error) {
	key, err := AgentIDFromEd25519PublicKey(pub)
	if err != nil {
		return Party{}, err
	}
	return Party{Name: strings.TrimSpace(name), Key: key}, nil
}

// Equal compares parties by key; the display name is not part of identity.
func (p Party) Equal(o Party) bool { return p.Key != "" && p.Key == o.Key }

func (p Party) IsZero() bool { return p.Key == "" }

func (p Party) PublicKey() (ed25519.PublicKey, error) {
	_, pub, err := ParseAgentID(p.Key)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(pub), nil
}

func (p Party) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

// Owns reports whether env was produced by p's key.
func (p Party) Owns(env signature.Envelope) bool {
	id, err := AgentIDFromEnvelope(env)
	return err == nil && id == p.Key
}

func AgentIDFromEd25519PublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519PubLen {
		return "", errors.New("ed25519 public key must be 32 bytes")
	}
	return agentIDPrefix + base64.RawURLEncoding.EncodeToString(pub), nil
}

func ParseAgentID(id string) (algo string, pub []byte, err error) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return "", nil, errors.New("invalid agent id format")
	}
	if parts[0] != "agent" || parts[1] != "pk" {
		return "", nil, errors.New("invalid agent id prefix")
	}
	if parts[2] != "ed25519" {
		return "", nil, errors.New("unsupported algorithm")
	}
	b64 := parts[3]
	if b64 == "" {
		return "", nil, errors.New("missing public key")
	}
	if strings.Contains(b64, "=") {
		return "", nil, errors.New("invalid base64url padding")
	}
	decoded, decodeErr := base64.RawURLEncoding.DecodeString(b64)
	if decodeErr != nil {
		return "", nil, errors.New("invalid base64url public key")
	}
	if len(decoded) != ed25519PubLen {
		return "", nil, errors.New("invalid ed25519 public key length")
	}
	return "ed25519", decoded, nil
}

func IsValidAgentID(id string) bool {
	_, _, err := ParseAgentID(id)
	return err == nil
}

// AgentIDFromEnvelope derives the agent id of the key that produced env.
func AgentIDFromEnvelope(env signature.Envelope) (string, error) {
	if strings.ToLower(strings.TrimSpace(env.Algorithm)) != "ed25519" {
		return "", errors.New("unsupported signature algorithm")
	}
	pub, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.PublicKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", errors.New("invalid signature public_key encoding")
	}
	return AgentIDFromEd25519PublicKey(pub)
}

// Signer is a Party together with its private key.
type Signer struct {
	Party Party
	priv  ed25519.PrivateKey
	now   func() time.Time
}

// NewSigner builds a Signer from a 32 byte ed25519 seed.
func NewSigner(name string, seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("ed25519 seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	p, err := NewParty(name, priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Signer{Party: p, priv: priv, now: time.Now}, nil
}

// GenerateSigner creates a Signer with a fresh key read from r
// (crypto/rand when r is nil).
func GenerateSigner(name string, r io.Reader) (*Signer, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	return NewSigner(name, seed)
}

// Sign produces a sig-v1 envelope over payload for the given context.
func (s *Signer) Sign(payload any, context string) (signature.Envelope, error) {
	return signature.SignEd25519(payload, s.priv, s.now(), context)
}
