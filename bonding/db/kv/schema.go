package kv

import (
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/bytesutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/hashutil"
)

// The schema will define how to store and retrieve data in the db.
// We store records under their natural key and maintain composite-key index
// buckets for the secondary lookups the engine needs.
var (
	bondsBucket                = []byte("bonds")                  // bondID -> json bond.
	bondContextIndexBucket     = []byte("bond-context-index")     // hash(contextID)||commitment||bondID -> bondID.
	reputationsBucket          = []byte("reputations")            // commitment -> json reputation.
	attestationsBucket         = []byte("attestations")           // attestationID -> json attestation.
	attestationBondIndexBucket = []byte("attestation-bond-index") // bondID||attestationID -> attestationID.
	evidenceBucket             = []byte("evidence")               // evidenceHash -> expiresAt(8B BE)||sealed blob.
	slashJobsBucket            = []byte("slash-jobs")             // dueAt(8B BE)||attestationID -> json job.
	safetyPoolBucket           = []byte("safety-pool")            // hash(contextID) -> balance(8B LE).
)

func encodeContextSender(contextID string, commitment [32]byte) []byte {
	ctxHash := hashutil.Hash([]byte(contextID))
	return append(ctxHash[:], commitment[:]...)
}

func encodeContextSenderBond(contextID string, commitment [32]byte, bondID string) []byte {
	return append(encodeContextSender(contextID, commitment), []byte(bondID)...)
}

func encodeBondAttestation(bondID, attestationID string) []byte {
	return append([]byte(bondID), []byte(attestationID)...)
}

func encodeJobKey(job *types.SlashJob) []byte {
	return encodeJobKeyParts(job.DueAt.UnixNano(), job.AttestationID)
}

func encodeJobKeyParts(dueUnixNano int64, attestationID string) []byte {
	return append(bytesutil.Uint64ToBytesBigEndian(uint64(dueUnixNano)), []byte(attestationID)...)
}

func encodeContextKey(contextID string) []byte {
	h := hashutil.Hash([]byte(contextID))
	return h[:]
}
