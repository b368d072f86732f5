package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/crypto"
)

func TestHMACAuth_FieldsVerify(t *testing.T) {
	auth := &crypto.HMACAuth{KeyID: "k1", Secret: base64.StdEncoding.EncodeToString([]byte("secret"))}
	payload := []byte{0x01, 0x02, 0x03}

	f := auth.FieldsAt("corr-1", payload, 1_700_000_000)
	assert.Equal(t, "k1", f[crypto.FieldKeyID])
	assert.Equal(t, "1700000000", f[crypto.FieldTimestamp])

	sig, ok := f[crypto.FieldSignature].(string)
	require.True(t, ok)
	require.NoError(t, auth.Verify("corr-1", payload, "1700000000", sig))

	assert.ErrorIs(t, auth.Verify("corr-2", payload, "1700000000", sig), crypto.ErrBadSignature)
	assert.ErrorIs(t, auth.Verify("corr-1", []byte{0x01}, "1700000000", sig), crypto.ErrBadSignature)
	assert.ErrorIs(t, auth.Verify("corr-1", payload, "1700000001", sig), crypto.ErrBadSignature)
	assert.ErrorIs(t, auth.Verify("corr-1", payload, "1700000000", "%%%"), crypto.ErrBadSignature)
}

func TestHMACAuth_RawSecret(t *testing.T) {
	raw := &crypto.HMACAuth{Secret: "not base64!"}
	f := raw.FieldsAt("c", []byte("p"), 1)
	require.NoError(t, raw.Verify("c", []byte("p"), "1", f[crypto.FieldSignature].(string)))

	other := &crypto.HMACAuth{Secret: "different"}
	assert.ErrorIs(t, other.Verify("c", []byte("p"), "1", f[crypto.FieldSignature].(string)), crypto.ErrBadSignature)
}

func TestHMACAuth_Enabled(t *testing.T) {
	var nilAuth *crypto.HMACAuth
	assert.False(t, nilAuth.Enabled())
	assert.False(t, (&crypto.HMACAuth{KeyID: "k"}).Enabled())
	assert.True(t, (&crypto.HMACAuth{Secret: "s"}).Enabled())
}
