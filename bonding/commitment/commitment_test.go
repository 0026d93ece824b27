package commitment

import (
	"testing"

	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
)

func TestDeriveSenderCommitment_Deterministic(t *testing.T) {
	identity := [32]byte{1, 2, 3}
	salt := []byte("salt-value")

	c1, err := DeriveSenderCommitment("ctx-a", identity, salt)
	require.NoError(t, err)
	c2, err := DeriveSenderCommitment("ctx-a", identity, salt)
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "same inputs must derive the same commitment")
}

func TestDeriveSenderCommitment_UnlinkableAcrossContexts(t *testing.T) {
	identity := [32]byte{1, 2, 3}
	salt := []byte("salt-value")

	c1, err := DeriveSenderCommitment("ctx-a", identity, salt)
	require.NoError(t, err)
	c2, err := DeriveSenderCommitment("ctx-b", identity, salt)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2, "distinct contexts must derive distinct commitments")
}

func TestDeriveSenderCommitment_SaltMatters(t *testing.T) {
	identity := [32]byte{9}
	c1, err := DeriveSenderCommitment("ctx-a", identity, []byte("salt-1"))
	require.NoError(t, err)
	c2, err := DeriveSenderCommitment("ctx-a", identity, []byte("salt-2"))
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestDeriveSenderCommitment_RejectsMalformedInput(t *testing.T) {
	identity := [32]byte{1}
	_, err := DeriveSenderCommitment("", identity, []byte("salt"))
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveSenderCommitment("ctx-a", identity, nil)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestDeriveNullifier_Deterministic(t *testing.T) {
	secret := []byte("sender-secret")

	n1, err := DeriveNullifier(secret, "ctx-a")
	require.NoError(t, err)
	n2, err := DeriveNullifier(secret, "ctx-a")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	n3, err := DeriveNullifier(secret, "ctx-b")
	require.NoError(t, err)
	assert.NotEqual(t, n1, n3, "nullifiers must not link across contexts")
}

func TestDeriveNullifier_RejectsMalformedInput(t *testing.T) {
	_, err := DeriveNullifier(nil, "ctx-a")
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveNullifier([]byte("secret"), "")
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestDeriveNullifier_LongSecretReduced(t *testing.T) {
	long := make([]byte, 128)
	for i := range long {
		long[i] = byte(i)
	}
	n1, err := DeriveNullifier(long, "ctx-a")
	require.NoError(t, err)
	n2, err := DeriveNullifier(long, "ctx-a")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}
