package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Wire layout: protobuf-encoded fields followed by a blake2b-256 digest of
// those bytes. Field 1 is always the schema version.
const checksumLen = blake2b.Size256

const (
	fVersion protowire.Number = iota + 1
	fCorrelationID
	fStrategy
	fAsset
	fSizeUSD
	fLeg
	fExpectedPnL
	fSuccessProb
	fSnapshotVersion
	fCreatedAt
	fTTL
	fExpiresAt
)

const (
	lChain protowire.Number = iota + 1
	lAction
	lProtocol
	lInstrument
	lAssetIn
	lAmountIn
	lAssetOut
	lMinAmountOut
	lMaxFeeBps
	lDeadline
)

// Marshal encodes an intent in the versioned binary format.
func Marshal(t domain.TradeIntent) ([]byte, error) {
	version := t.SchemaVersion
	if version == 0 {
		version = domain.IntentSchemaVersion
	}
	if version != domain.IntentSchemaVersion {
		return nil, fmt.Errorf("intent: marshal v%d: %w", version, domain.ErrUnsupportedVersion)
	}

	var b []byte
	b = appendVarint(b, fVersion, uint64(version))
	b = appendString(b, fCorrelationID, t.CorrelationID)
	b = appendString(b, fStrategy, t.Strategy)
	b = appendString(b, fAsset, t.Asset)
	b = appendDouble(b, fSizeUSD, t.SizeUSD)
	for _, l := range t.Legs {
		b = protowire.AppendTag(b, fLeg, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalLeg(l))
	}
	b = appendDouble(b, fExpectedPnL, t.ExpectedPnLUSD)
	b = appendDouble(b, fSuccessProb, t.SuccessProb)
	b = appendVarint(b, fSnapshotVersion, t.SnapshotVersion)
	b = appendTime(b, fCreatedAt, t.CreatedAt)
	b = appendVarint(b, fTTL, protowire.EncodeZigZag(int64(t.TTL)))
	b = appendTime(b, fExpiresAt, t.ExpiresAt)

	sum := blake2b.Sum256(b)
	return append(b, sum[:]...), nil
}

func marshalLeg(l domain.IntentLeg) []byte {
	var b []byte
	b = appendString(b, lChain, string(l.Chain))
	b = appendString(b, lAction, string(l.Action))
	b = appendString(b, lProtocol, l.Protocol)
	b = appendString(b, lInstrument, l.Instrument)
	b = appendString(b, lAssetIn, l.AssetIn)
	b = appendDouble(b, lAmountIn, l.AmountIn)
	b = appendString(b, lAssetOut, l.AssetOut)
	b = appendDouble(b, lMinAmountOut, l.MinAmountOut)
	b = appendDouble(b, lMaxFeeBps, l.MaxFeeBps)
	b = appendTime(b, lDeadline, l.Deadline)
	return b
}

// Unmarshal verifies the checksum and decodes an intent. Unknown fields are
// skipped so newer producers remain readable within the same schema version.
func Unmarshal(data []byte) (domain.TradeIntent, error) {
	if len(data) < checksumLen {
		return domain.TradeIntent{}, fmt.Errorf("intent: unmarshal: %d bytes: %w", len(data), domain.ErrChecksum)
	}
	body, trailer := data[:len(data)-checksumLen], data[len(data)-checksumLen:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return domain.TradeIntent{}, fmt.Errorf("intent: unmarshal: %w", domain.ErrChecksum)
	}

	var t domain.TradeIntent
	sawVersion := false
	err := walk(body, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		if !sawVersion {
			if num != fVersion || typ != protowire.VarintType {
				return fmt.Errorf("schema version must be field 1: %w", domain.ErrUnsupportedVersion)
			}
			if uint32(u) != domain.IntentSchemaVersion {
				return fmt.Errorf("schema v%d: %w", u, domain.ErrUnsupportedVersion)
			}
			t.SchemaVersion = uint32(u)
			sawVersion = true
			return nil
		}
		switch num {
		case fCorrelationID:
			t.CorrelationID = string(v)
		case fStrategy:
			t.Strategy = string(v)
		case fAsset:
			t.Asset = string(v)
		case fSizeUSD:
			t.SizeUSD = math.Float64frombits(u)
		case fLeg:
			l, err := unmarshalLeg(v)
			if err != nil {
				return err
			}
			t.Legs = append(t.Legs, l)
		case fExpectedPnL:
			t.ExpectedPnLUSD = math.Float64frombits(u)
		case fSuccessProb:
			t.SuccessProb = math.Float64frombits(u)
		case fSnapshotVersion:
			t.SnapshotVersion = u
		case fCreatedAt:
			t.CreatedAt = decodeTime(u)
		case fTTL:
			t.TTL = time.Duration(protowire.DecodeZigZag(u))
		case fExpiresAt:
			t.ExpiresAt = decodeTime(u)
		}
		return nil
	})
	if err != nil {
		return domain.TradeIntent{}, fmt.Errorf("intent: unmarshal: %w", err)
	}
	if !sawVersion {
		return domain.TradeIntent{}, fmt.Errorf("intent: unmarshal: empty message: %w", domain.ErrUnsupportedVersion)
	}
	return t, nil
}

func unmarshalLeg(data []byte) (domain.IntentLeg, error) {
	var l domain.IntentLeg
	err := walk(data, func(num protowire.Number, _ protowire.Type, v []byte, u uint64) error {
		switch num {
		case lChain:
			l.Chain = domain.Chain(v)
		case lAction:
			l.Action = domain.LegAction(v)
		case lProtocol:
			l.Protocol = string(v)
		case lInstrument:
			l.Instrument = string(v)
		case lAssetIn:
			l.AssetIn = string(v)
		case lAmountIn:
			l.AmountIn = math.Float64frombits(u)
		case lAssetOut:
			l.AssetOut = string(v)
		case lMinAmountOut:
			l.MinAmountOut = math.Float64frombits(u)
		case lMaxFeeBps:
			l.MaxFeeBps = math.Float64frombits(u)
		case lDeadline:
			l.Deadline = decodeTime(u)
		}
		return nil
	})
	return l, err
}

// MarshalText renders the diagnostic form: indented JSON.
func MarshalText(t domain.TradeIntent) ([]byte, error) {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("intent: marshal text: %w", err)
	}
	return b, nil
}

// walk iterates the fields of a message. Varint and fixed64 values arrive in
// u, length-delimited ones in v.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			v []byte
			u uint64
		)
		switch typ {
		case protowire.VarintType:
			u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, v, u); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, f float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendVarint(b, num, protowire.EncodeZigZag(t.UnixNano()))
}

func decodeTime(u uint64) time.Time {
	return time.Unix(0, protowire.DecodeZigZag(u)).UTC()
}
