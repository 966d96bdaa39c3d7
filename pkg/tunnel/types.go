// Package tunnel provides the public types exchanged between the tunnel
// gateway and printer agents: correlation references, request and response
// envelopes, and the error kinds surfaced by the tunnel protocol.
package tunnel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBrokerUnavailable is returned when the key-value broker cannot be reached.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrBrokerCommand is returned when the broker rejects a command.
	ErrBrokerCommand = errors.New("broker command failed")
	// ErrDecode is returned when an envelope does not parse. It is distinct
	// from a missing response.
	ErrDecode = errors.New("malformed envelope")
	// ErrInvalidReference is returned for empty or malformed references.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrDispatch is returned when a request could not be handed to the delivery path.
	ErrDispatch = errors.New("request dispatch failed")
)

// Reference correlates one in-flight tunneled request with its response.
type Reference string

// NewReference mints a new unique reference.
func NewReference() Reference {
	return Reference(uuid.New().String())
}

// Validate checks that the reference can be used as part of a mailbox key.
func (r Reference) Validate() error {
	if r == "" {
		return fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if strings.ContainsAny(string(r), " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidReference, string(r))
	}
	return nil
}

func (r Reference) String() string {
	return string(r)
}

// Transport labels the channel used to reach the agent. It is carried into
// traffic statistics and never interpreted by the protocol.
type Transport string

const (
	TransportWebSocket Transport = "ws"
	TransportHTTP      Transport = "http"
	TransportJanus     Transport = "janus"
)

// Validate rejects labels that would corrupt stats field names.
func (t Transport) Validate() error {
	if t == "" {
		return errors.New("transport is required")
	}
	if strings.ContainsAny(string(t), ". \t\r\n") {
		return fmt.Errorf("transport %q must not contain dots or whitespace", string(t))
	}
	return nil
}

// Target identifies whose traffic a tunneled exchange belongs to.
type Target struct {
	UserID    int64     `json:"userId"`
	PrinterID int64     `json:"printerId"`
	Transport Transport `json:"transport"`
}

// Validate checks the target fields.
func (t Target) Validate() error {
	if t.UserID <= 0 {
		return fmt.Errorf("userId must be positive, got %d", t.UserID)
	}
	if t.PrinterID <= 0 {
		return fmt.Errorf("printerId must be positive, got %d", t.PrinterID)
	}
	return t.Transport.Validate()
}

// Request is an HTTP-shaped request delivered to an agent.
type Request struct {
	Ref     Reference           `cbor:"ref" json:"-"`
	Method  string              `cbor:"method" json:"method"`
	Path    string              `cbor:"path" json:"path"`
	Headers map[string][]string `cbor:"headers,omitempty" json:"headers,omitempty"`
	Body    []byte              `cbor:"body,omitempty" json:"body,omitempty"`
}

// Envelope is an HTTP-shaped response produced by an agent. The mailbox
// treats its encoded form as an indivisible blob.
type Envelope struct {
	Ref     Reference           `cbor:"ref,omitempty" json:"ref,omitempty"`
	Status  int                 `cbor:"status" json:"status"`
	Headers map[string][]string `cbor:"headers,omitempty" json:"headers,omitempty"`
	Body    []byte              `cbor:"body,omitempty" json:"body,omitempty"`
}
