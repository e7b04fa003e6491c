package ledger

import "github.com/fxamacker/cbor/v2"

// cborEncMode and cborDecMode are the deterministic CBOR encoding/decoding
// options used for every non-fixed-layout wire payload in this package
// (LedgerView today). Sorted map keys, no indefinite-length items, no tags:
// a closed wire format, not an open CBOR dialect.
var (
	cborEncMode = mustEncMode()
	cborDecMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeUnixDynamic,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

func mustDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
	}
	mode, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// CBORCodec marshals and unmarshals values using the package's canonical
// CBOR options, mirroring the teacher's massifs/cborcodec.go wrapper.
type CBORCodec struct{}

// NewCBORCodec returns a CBORCodec bound to the canonical options.
func NewCBORCodec() CBORCodec {
	return CBORCodec{}
}

// MarshalCBOR encodes v deterministically.
func (CBORCodec) MarshalCBOR(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// UnmarshalCBOR decodes b into v.
func (CBORCodec) UnmarshalCBOR(b []byte, v any) error {
	return cborDecMode.Unmarshal(b, v)
}
