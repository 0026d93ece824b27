// Package evidence seals per-forward audit records at rest and enforces
// their bounded retention. Records hold only one-way fingerprints of message
// content; the sealed blob exists so that an abuse attestation filed later
// always has evidence to point at.
package evidence

import (
	"context"
	"crypto/rand"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/bytesutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/hashutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

var log = logrus.WithField("prefix", "evidence")

var (
	evidenceRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_records_total",
		Help: "Total number of evidence records sealed and stored.",
	})
	evidencePrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_pruned_total",
		Help: "Total number of evidence records removed by the retention sweep.",
	})
)

// Store seals evidence records with XChaCha20-Poly1305 before they touch the
// database and opens them again on fetch. The evidence hash doubles as the
// storage key and as associated data, so a blob swapped between keys fails
// authentication.
type Store struct {
	database db.Database
	aead     cipher
}

type cipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewStore builds an evidence store from a 32-byte sealing key.
func NewStore(database db.Database, key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize evidence sealing key")
	}
	return &Store{database: database, aead: aead}, nil
}

// Record seals and persists an evidence record, returning its hash. The hash
// is derived from the record's fields, so recording the same forward twice
// lands on the same key and the second write is a no-op.
func (s *Store) Record(ctx context.Context, ev *types.Evidence) ([32]byte, error) {
	ev.Hash = digest(ev)
	plaintext, err := json.Marshal(ev)
	if err != nil {
		return [32]byte{}, err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return [32]byte{}, errors.Wrap(err, "could not generate evidence nonce")
	}
	blob := s.aead.Seal(nonce, nonce, plaintext, ev.Hash[:])
	expiresAt := ev.Timestamp.Add(params.BondingConfig().EvidenceRetention)
	if err := s.database.SaveEvidenceBlob(ctx, ev.Hash, blob, expiresAt); err != nil {
		return [32]byte{}, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	evidenceRecordedTotal.Inc()
	return ev.Hash, nil
}

// Fetch opens the sealed record stored under hash.
func (s *Store) Fetch(ctx context.Context, hash [32]byte) (*types.Evidence, error) {
	blob, err := s.database.EvidenceBlob(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	if blob == nil {
		return nil, errors.Wrapf(types.ErrNotFound, "no evidence for hash %#x", hash)
	}
	nonceSize := s.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, errors.New("sealed evidence blob is truncated")
	}
	plaintext, err := s.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], hash[:])
	if err != nil {
		return nil, errors.Wrap(err, "could not authenticate evidence blob")
	}
	ev := &types.Evidence{}
	if err := json.Unmarshal(plaintext, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Has reports whether a record exists for the hash without decrypting it.
func (s *Store) Has(ctx context.Context, hash [32]byte) (bool, error) {
	exists, err := s.database.HasEvidence(ctx, hash)
	if err != nil {
		return false, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	return exists, nil
}

// digest binds the evidence hash to every field of the record.
func digest(ev *types.Evidence) [32]byte {
	data := make([]byte, 0, 128)
	data = append(data, ev.ContentFingerprint[:]...)
	data = append(data, ev.SenderCommitment[:]...)
	data = append(data, []byte(ev.ContextID)...)
	data = append(data, bytesutil.Uint64ToBytesBigEndian(uint64(ev.Timestamp.UnixNano()))...)
	data = append(data, ev.TransportSig...)
	return hashutil.Hash(data)
}
