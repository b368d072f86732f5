// Package crypto authenticates intents published to the execution boundary
// with HMAC-SHA256 so executors can reject entries they did not get from this
// engine.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Stream field names carrying the signature.
const (
	FieldKeyID     = "sig_key"
	FieldTimestamp = "sig_ts"
	FieldSignature = "sig"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("crypto: bad signature")

// HMACAuth holds one signing credential. KeyID lets executors pick the
// secret during rotation.
type HMACAuth struct {
	KeyID  string
	Secret string // base64 standard encoding; raw bytes if it does not decode
}

// Enabled reports whether a secret is configured.
func (h *HMACAuth) Enabled() bool { return h != nil && h.Secret != "" }

// Fields returns the signature fields for one intent. The signature is
// HMAC-SHA256(secret, timestamp+"."+correlationID+"."+payload) encoded as
// base64.
func (h *HMACAuth) Fields(correlationID string, payload []byte) map[string]any {
	return h.FieldsAt(correlationID, payload, time.Now().Unix())
}

// FieldsAt is like Fields but lets the caller supply the Unix timestamp.
func (h *HMACAuth) FieldsAt(correlationID string, payload []byte, unixTS int64) map[string]any {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]any{
		FieldKeyID:     h.KeyID,
		FieldTimestamp: ts,
		FieldSignature: hmacSHA256Base64(h.secret(), message(ts, correlationID, payload)),
	}
}

// Verify checks sig over the same message Fields signs.
func (h *HMACAuth) Verify(correlationID string, payload []byte, ts, sig string) error {
	want, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	mac := hmac.New(sha256.New, h.secret())
	mac.Write(message(ts, correlationID, payload))
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrBadSignature
	}
	return nil
}

func (h *HMACAuth) secret() []byte {
	b, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		return []byte(h.Secret)
	}
	return b
}

func message(ts, correlationID string, payload []byte) []byte {
	msg := make([]byte, 0, len(ts)+len(correlationID)+len(payload)+2)
	msg = append(msg, ts...)
	msg = append(msg, '.')
	msg = append(msg, correlationID...)
	msg = append(msg, '.')
	return append(msg, payload...)
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
