// Package codec provides the CBOR encoding used for tunnel envelopes and
// dispatched requests. Both the gateway and the agent side must agree on
// these modes, so every package encodes through here.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: sorted map keys and smallest
// integer encoding, so identical envelopes produce identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so older readers accept newer envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Bound hostile input coming off the broker.
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Trailing bytes after the first data
// item are rejected.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Valid reports whether data is a single well-formed CBOR data item.
func Valid(data []byte) error {
	return decMode.Wellformed(data)
}
