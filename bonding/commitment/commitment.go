// Package commitment implements the derivation of per-context sender
// commitments and nullifiers. Both are deterministic one-way functions with
// no state: the same inputs always derive the same outputs, and commitments
// derived for different contexts are unlinkable to one another.
package commitment

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bytewizard42i/selectConnect-app-pro/shared/hashutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

// ErrMalformedInput is returned when a required derivation input is empty.
var ErrMalformedInput = errors.New("malformed derivation input")

// DeriveSenderCommitment binds an identity commitment to a sharing context.
// The salt never leaves the deriving party; without it the commitment reveals
// nothing about the identity, and distinct contexts produce unrelated values.
func DeriveSenderCommitment(contextID string, identityCommitment [32]byte, salt []byte) ([32]byte, error) {
	var zero [32]byte
	if contextID == "" {
		return zero, errors.Wrap(ErrMalformedInput, "empty context id")
	}
	if len(salt) == 0 {
		return zero, errors.Wrap(ErrMalformedInput, "empty salt")
	}
	return hashutil.Hash(encodeFields(
		[]byte(params.BondingConfig().CommitmentVersion),
		[]byte(contextID),
		identityCommitment[:],
		salt,
	)), nil
}

// DeriveNullifier computes PRF(secret, contextID). It is emitted only at
// slash or attestation time and links repeat offenses within one context
// without exposing the underlying identity.
func DeriveNullifier(secret []byte, contextID string) ([32]byte, error) {
	var zero [32]byte
	if len(secret) == 0 {
		return zero, errors.Wrap(ErrMalformedInput, "empty secret")
	}
	if contextID == "" {
		return zero, errors.Wrap(ErrMalformedInput, "empty context id")
	}
	return hashutil.HashKeyed(secret, encodeFields(
		[]byte(params.BondingConfig().CommitmentVersion+"-nullifier"),
		[]byte(contextID),
	))
}

// encodeFields length-prefixes every field so that no two distinct input
// tuples ever serialize to the same byte stream.
func encodeFields(fields ...[]byte) []byte {
	size := 0
	for _, f := range fields {
		size += 4 + len(f)
	}
	out := make([]byte, 0, size)
	var l [4]byte
	for _, f := range fields {
		binary.LittleEndian.PutUint32(l[:], uint32(len(f)))
		out = append(out, l[:]...)
		out = append(out, f...)
	}
	return out
}
