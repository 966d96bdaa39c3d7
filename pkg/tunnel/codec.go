package tunnel

import (
	"fmt"

	"github.com/printlink/tunnel/internal/codec"
)

// EncodeEnvelope encodes an envelope for the mailbox.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope is nil")
	}
	data, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope decodes mailbox bytes. Failures wrap ErrDecode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &env, nil
}

// EncodeRequest encodes a request for the delivery path.
func EncodeRequest(req *Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	data, err := codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// DecodeRequest decodes a delivered request. Failures wrap ErrDecode.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := codec.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := req.Ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &req, nil
}
