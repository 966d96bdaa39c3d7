package tunnel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReference_Unique(t *testing.T) {
	seen := make(map[Reference]struct{})
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		require.NoError(t, ref.Validate())
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestReference_Validate(t *testing.T) {
	assert.ErrorIs(t, Reference("").Validate(), ErrInvalidReference)
	assert.ErrorIs(t, Reference("a b").Validate(), ErrInvalidReference)
	assert.NoError(t, Reference("abc-123").Validate())
}

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"valid", Target{UserID: 1, PrinterID: 2, Transport: TransportWebSocket}, false},
		{"no user", Target{PrinterID: 2, Transport: TransportWebSocket}, true},
		{"no printer", Target{UserID: 1, Transport: TransportWebSocket}, true},
		{"no transport", Target{UserID: 1, PrinterID: 2}, true},
		{"dotted transport", Target{UserID: 1, PrinterID: 2, Transport: "a.b"}, true},
		{"custom transport", Target{UserID: 1, PrinterID: 2, Transport: "webrtc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := &Envelope{
		Ref:     "ref-1",
		Status:  201,
		Headers: map[string][]string{"Content-Type": {"application/json"}, "X-Multi": {"a", "b"}},
		Body:    []byte(`{"ok":true}`),
	}

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestDecodeEnvelope_Garbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte{0xff, 0x01, 0x02})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = DecodeEnvelope(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRequest_RoundTrip(t *testing.T) {
	req := &Request{
		Ref:    NewReference(),
		Method: "GET",
		Path:   "/api/job",
	}

	data, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestDecodeRequest_MissingRef(t *testing.T) {
	data, err := EncodeRequest(&Request{Method: "GET", Path: "/"})
	require.NoError(t, err)

	_, err = DecodeRequest(data)
	assert.ErrorIs(t, err, ErrDecode)
}
