// Package codec provides the canonical binary encoding used for every
// persisted and wire-transmitted structure in plotchain. Canonical CBOR
// (RFC 8949 core deterministic encoding) gives length-prefixed variable
// fields and a single well-defined byte image per value, which is what
// proof-id/content-id/tx-id/block-id hashing requires: two encoders must
// never produce different bytes for the same value.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encode mode: %v", err))
	}
	encMode = m

	dopts := cbor.DecOptions{}
	dm, err := dopts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decode mode: %v", err))
	}
	decMode = dm
}

// Marshal encodes v using canonical CBOR. The output is deterministic:
// identical values always produce identical bytes, which is the property
// id-hashing and wire compatibility depend on.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes canonical CBOR into v.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal %T: %w", v, err)
	}
	return nil
}
