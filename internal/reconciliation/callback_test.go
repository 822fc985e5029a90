package reconciliation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := map[string]ProviderState{
		"COMPLETE":   StateSucceeded,
		"complete":   StateSucceeded,
		"FAILED":     StateFailed,
		"CANCELLED":  StateFailed,
		"PENDING":    StateInFlight,
		"PROCESSING": StateInFlight,
		"RETRY":      StateInFlight,
		"REVERSED":   StateUnknown,
		"":           StateUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("whsec")
	body := []byte(`{"tracking_id":"trk-1","state":"COMPLETE"}`)
	sig := v.Sign(body)

	require.NoError(t, v.Verify(body, sig))
	require.NoError(t, v.Verify(body, "sha256="+sig))

	err := v.Verify(body, "deadbeef")
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))

	err = v.Verify([]byte(`{"tracking_id":"trk-1","state":"FAILED"}`), sig)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication), "tampered body")

	assert.Error(t, v.Verify(body, ""))
	assert.Error(t, NewHMACVerifier("").Verify(body, sig))
}

func TestChallengeVerifier(t *testing.T) {
	v := NewChallengeVerifier("s3cret")
	require.NoError(t, v.Verify([]byte(`{"challenge":"s3cret"}`), ""))
	assert.Error(t, v.Verify([]byte(`{"challenge":"nope"}`), ""))
	assert.Error(t, v.Verify([]byte(`{}`), ""))
	assert.Error(t, v.Verify([]byte(`not json`), ""))
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier("challenge", "x")
	require.NoError(t, err)
	assert.IsType(t, &ChallengeVerifier{}, v)

	v, err = NewVerifier("", "x")
	require.NoError(t, err)
	assert.IsType(t, &HMACVerifier{}, v)

	_, err = NewVerifier("jwt", "x")
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestParseCallback(t *testing.T) {
	cb, err := parseCallback([]byte(`{"tracking_id":" trk-1 ","state":"complete","value":"2000.00","invoice_id":"INV"}`))
	require.NoError(t, err)
	assert.Equal(t, "trk-1", cb.TrackingID)
	assert.Equal(t, "COMPLETE", cb.State)

	cb, err = parseCallback([]byte(`{"api_ref":" ref-1 ","state":"COMPLETE"}`))
	require.NoError(t, err)
	assert.Equal(t, "ref-1", cb.APIRef)
	assert.Empty(t, cb.TrackingID)

	_, err = parseCallback([]byte(`{"state":"COMPLETE"}`))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = parseCallback([]byte(`{`))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCallbackAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		present bool
		wantErr bool
	}{
		{`"2000.00"`, 2000, true, false},
		{`2500`, 2500, true, false},
		{`" 10.5 "`, 10.5, true, false},
		{``, 0, false, false},
		{`null`, 0, false, false},
		{`""`, 0, false, false},
		{`"abc"`, 0, true, true},
	}
	for _, tt := range tests {
		cb := Callback{Value: json.RawMessage(tt.raw)}
		got, ok, err := cb.Amount()
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.present, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
