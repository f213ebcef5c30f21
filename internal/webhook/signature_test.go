package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr error
		want    Signature
	}{
		{"valid", "t=1700000000000,v1=abc", nil, Signature{Timestamp: 1700000000000, Hashes: []string{"abc"}}},
		{"spaces and extra scheme", " t=5, v0=zzz, v1=abc ", nil, Signature{Timestamp: 5, Hashes: []string{"abc"}}},
		{"empty", "", ErrMissingSignature, Signature{}},
		{"no hash", "t=5", ErrMalformedSignature, Signature{}},
		{"no timestamp", "v1=abc", ErrMalformedSignature, Signature{}},
		{"bad timestamp", "t=soon,v1=abc", ErrMalformedSignature, Signature{}},
		{"no equals", "garbage", ErrMalformedSignature, Signature{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignature(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	body := []byte(`{"_id":"park-zion","_type":"park"}`)
	signedAt := time.UnixMilli(1700000000000)
	header := Sign(testSecret, signedAt, body)

	v := Verifier{Secret: testSecret}
	assert.NoError(t, v.Verify(header, body))

	assert.ErrorIs(t, v.Verify(header, []byte(`{"_id":"park-zion","_type":"category"}`)), ErrSignatureMismatch)
	assert.ErrorIs(t, Verifier{Secret: "other"}.Verify(header, body), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify("", body), ErrMissingSignature)
}

func TestVerifier_MaxAge(t *testing.T) {
	body := []byte(`{}`)
	signedAt := time.UnixMilli(1700000000000)
	header := Sign(testSecret, signedAt, body)

	fresh := Verifier{Secret: testSecret, MaxAge: 5 * time.Minute, Now: func() time.Time { return signedAt.Add(time.Minute) }}
	assert.NoError(t, fresh.Verify(header, body))

	stale := Verifier{Secret: testSecret, MaxAge: 5 * time.Minute, Now: func() time.Time { return signedAt.Add(10 * time.Minute) }}
	assert.ErrorIs(t, stale.Verify(header, body), ErrSignatureExpired)
}

func TestSign_Format(t *testing.T) {
	header := Sign(testSecret, time.UnixMilli(42), []byte("x"))
	assert.Regexp(t, `^t=42,v1=[A-Za-z0-9_-]+$`, header)
}
