package signature

const (
	Version   = "sig-v1"
	Algorithm = "ed25519"
)

// Envelope is a detached ed25519 signature over the canonical hash of a
// payload. Context names what was signed, e.g. "negotiation-tx".
type Envelope struct {
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	PayloadHash string `json:"payload_hash"`
	IssuedAt    string `json:"issued_at"`
	KeyID       string `json:"key_id,omitempty"`
	Context     string `json:"context,omitempty"`
}
