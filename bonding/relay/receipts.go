package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/bytewizard42i/selectConnect-app-pro/shared/bytesutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/hashutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

// Receipt proves to sender and recipient that a specific message was
// forwarded and its evidence recorded, without revealing either identity.
type Receipt struct {
	EvidenceHash       [32]byte  `json:"evidence_hash"`
	ContentFingerprint [32]byte  `json:"content_fingerprint"`
	IssuedAt           time.Time `json:"issued_at"`
	Signature          []byte    `json:"signature"`
}

// ReceiptSigner issues ed25519 receipts under a per-process key.
type ReceiptSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewReceiptSigner generates a fresh signing key.
func NewReceiptSigner() (*ReceiptSigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate receipt key")
	}
	return &ReceiptSigner{priv: priv, pub: pub}, nil
}

// PublicKey returns the receipt verification key.
func (s *ReceiptSigner) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}

// Sign issues a receipt binding the evidence record to the forwarded content.
func (s *ReceiptSigner) Sign(evidenceHash, fingerprint [32]byte, issuedAt time.Time) *Receipt {
	digest := receiptDigest(evidenceHash, fingerprint, issuedAt)
	return &Receipt{
		EvidenceHash:       evidenceHash,
		ContentFingerprint: fingerprint,
		IssuedAt:           issuedAt,
		Signature:          ed25519.Sign(s.priv, digest[:]),
	}
}

// VerifyReceipt checks a receipt against the relay's public key.
func VerifyReceipt(pub []byte, r *Receipt) bool {
	if len(pub) != ed25519.PublicKeySize || r == nil {
		return false
	}
	digest := receiptDigest(r.EvidenceHash, r.ContentFingerprint, r.IssuedAt)
	return ed25519.Verify(ed25519.PublicKey(pub), digest[:], r.Signature)
}

// receiptDigest domain-separates receipt signatures from any other use of the
// signing key.
func receiptDigest(evidenceHash, fingerprint [32]byte, issuedAt time.Time) [32]byte {
	data := make([]byte, 0, 128)
	data = append(data, []byte(params.BondingConfig().ReceiptDomainTag)...)
	data = append(data, evidenceHash[:]...)
	data = append(data, fingerprint[:]...)
	data = append(data, bytesutil.Uint64ToBytesBigEndian(uint64(issuedAt.UnixNano()))...)
	return hashutil.Hash(data)
}
