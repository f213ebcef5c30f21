// Package webhook verifies signed CMS webhook deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the delivery signature.
const SignatureHeader = "sanity-webhook-signature"

var (
	ErrMissingSignature   = errors.New("missing webhook signature")
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrSignatureExpired   = errors.New("webhook signature expired")
)

// Signature is a parsed t=<ms>,v1=<hash> header value.
type Signature struct {
	Timestamp int64
	Hashes    []string
}

// ParseSignature parses a header value. Unknown schemes are ignored.
func ParseSignature(header string) (Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Signature{}, ErrMissingSignature
	}

	var sig Signature
	seenTimestamp := false
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Signature{}, ErrMalformedSignature
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Signature{}, fmt.Errorf("%w: bad timestamp", ErrMalformedSignature)
			}
			sig.Timestamp = ts
			seenTimestamp = true
		case "v1":
			if value != "" {
				sig.Hashes = append(sig.Hashes, value)
			}
		}
	}
	if !seenTimestamp || len(sig.Hashes) == 0 {
		return Signature{}, ErrMalformedSignature
	}
	return sig, nil
}

// Verifier checks signatures against a shared secret.
type Verifier struct {
	Secret string
	MaxAge time.Duration
	Now    func() time.Time
}

// Verify checks header against body. MaxAge of zero disables the freshness check.
func (v Verifier) Verify(header string, body []byte) error {
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}

	if v.MaxAge > 0 {
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		signedAt := time.UnixMilli(sig.Timestamp)
		if now().Sub(signedAt) > v.MaxAge {
			return ErrSignatureExpired
		}
	}

	expected := []byte(compute(v.Secret, sig.Timestamp, body))
	for _, h := range sig.Hashes {
		if hmac.Equal(expected, []byte(h)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign produces a header value for body at t.
func Sign(secret string, t time.Time, body []byte) string {
	ts := t.UnixMilli()
	return fmt.Sprintf("t=%d,v1=%s", ts, compute(secret, ts, body))
}

func compute(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
