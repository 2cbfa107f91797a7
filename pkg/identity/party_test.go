package identity

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordsai/negotiation/pkg/signature"
)

func seed(b byte) []byte { return bytes.Repeat([]byte{b}, ed25519.SeedSize) }

func TestNewSignerDeterministic(t *testing.T) {
	a1, err := NewSigner("O=Alice,L=London,C=GB", seed(1))
	require.NoError(t, err)
	a2, err := NewSigner("alice", seed(1))
	require.NoError(t, err)
	b, err := NewSigner("O=Bob,L=New York,C=US", seed(2))
	require.NoError(t, err)

	assert.True(t, a1.Party.Equal(a2.Party), "same seed must give the same party key")
	assert.False(t, a1.Party.Equal(b.Party))
	assert.True(t, IsValidAgentID(a1.Party.Key))
	assert.Equal(t, "O=Alice,L=London,C=GB", a1.Party.String())
}

func TestPartyZeroNeverEqual(t *testing.T) {
	assert.False(t, Party{}.Equal(Party{}))
	assert.True(t, Party{}.IsZero())
	assert.Equal(t, "k", Party{Key: "k"}.String())
}

func TestNewSignerRejectsShortSeed(t *testing.T) {
	_, err := NewSigner("x", []byte("short"))
	require.Error(t, err)
}

func TestGenerateSigner(t *testing.T) {
	s, err := GenerateSigner("charlie", nil)
	require.NoError(t, err)
	pub, err := s.Party.PublicKey()
	require.NoError(t, err)
	assert.Len(t, pub, ed25519.PublicKeySize)
}

func TestSignerSignOwnedByParty(t *testing.T) {
	alice, err := NewSigner("alice", seed(1))
	require.NoError(t, err)
	bob, err := NewSigner("bob", seed(2))
	require.NoError(t, err)

	payload := map[string]any{"negotiation_id": "n-1"}
	env, err := alice.Sign(payload, "negotiation-tx")
	require.NoError(t, err)

	_, err = signature.VerifyContext(payload, env, "negotiation-tx")
	require.NoError(t, err)
	assert.True(t, alice.Party.Owns(env))
	assert.False(t, bob.Party.Owns(env))

	id, err := AgentIDFromEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, alice.Party.Key, id)
}

func TestParseAgentIDRejects(t *testing.T) {
	tests := []string{
		"",
		"agent:pk:ed25519",
		"user:pk:ed25519:AAAA",
		"agent:pk:es256:AAAA",
		"agent:pk:ed25519:",
		"agent:pk:ed25519:AAAA=",
		"agent:pk:ed25519:AAAA",
	}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			_, _, err := ParseAgentID(id)
			assert.Error(t, err)
		})
	}
}

func TestAgentIDFromEnvelopeRejectsOtherAlgorithms(t *testing.T) {
	_, err := AgentIDFromEnvelope(signature.Envelope{Algorithm: "es256"})
	assert.Error(t, err)
}
