// ABOUTME: Default coder for coded fields, CBOR-backed
package field

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCoder encodes coded field values as CBOR. It is the default coder;
// its Name participates in the version lock, so renaming it is a schema
// change.
type CBORCoder struct{}

// Name returns the stable coder identity
func (CBORCoder) Name() string {
	return "cbor"
}

// Encode marshals a value to CBOR bytes
func (CBORCoder) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Decode unmarshals CBOR bytes into the given target
func (CBORCoder) Decode(data []byte, into any) error {
	return cbor.Unmarshal(data, into)
}
