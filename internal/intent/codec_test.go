package intent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/intent"
)

func sampleIntent(t *testing.T) domain.TradeIntent {
	t.Helper()
	ti, err := fixedBuilder(nil).Build(approve(t, evaluation("c-1"))[0])
	require.NoError(t, err)
	return ti
}

func TestCodec_RoundTrip(t *testing.T) {
	ti := sampleIntent(t)

	b, err := intent.Marshal(ti)
	require.NoError(t, err)
	got, err := intent.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, ti, got)
}

func TestCodec_DetectsCorruption(t *testing.T) {
	b, err := intent.Marshal(sampleIntent(t))
	require.NoError(t, err)

	b[5] ^= 0xff
	_, err = intent.Unmarshal(b)
	assert.ErrorIs(t, err, domain.ErrChecksum)

	_, err = intent.Unmarshal([]byte{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrChecksum)
}

func TestCodec_RejectsUnknownVersion(t *testing.T) {
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, 2)
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendString(body, "x")
	sum := blake2b.Sum256(body)

	_, err := intent.Unmarshal(append(body, sum[:]...))
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)

	ti := sampleIntent(t)
	ti.SchemaVersion = 2
	_, err = intent.Marshal(ti)
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	b, err := intent.Marshal(sampleIntent(t))
	require.NoError(t, err)
	body := b[:len(b)-blake2b.Size256]
	body = protowire.AppendTag(body, 99, protowire.BytesType)
	body = protowire.AppendString(body, "future")
	sum := blake2b.Sum256(body)

	got, err := intent.Unmarshal(append(body, sum[:]...))
	require.NoError(t, err)
	assert.Equal(t, "WETH", got.Asset)
}

func TestMarshalText(t *testing.T) {
	ti := sampleIntent(t)
	b, err := intent.MarshalText(ti)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"correlation_id": "`+ti.CorrelationID+`"`)
	assert.Contains(t, ti.String(), "swap ethereum/uniswap_v3")
	assert.Equal(t, 12*time.Second, ti.TTL)
}
