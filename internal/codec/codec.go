// Package codec converts between wire bytes and cty element values. String
// elements travel raw; everything else is JSON, using cty's own JSON
// mapping so the element round-trips with its type intact.
package codec

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Encode renders one element for the wire.
func Encode(v cty.Value) ([]byte, error) {
	if v.Type() == cty.String && !v.IsNull() {
		return []byte(v.AsString()), nil
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("encode element: %w", err)
	}
	return data, nil
}

// Decode parses wire bytes into an element of the wanted type. With no
// declared type it attempts JSON first and falls back to a raw string, so
// plain-text pipelines work without hints.
func Decode(data []byte, want cty.Type) (cty.Value, error) {
	if want == cty.String {
		return cty.StringVal(string(data)), nil
	}
	if want == cty.NilType || want == cty.DynamicPseudoType {
		if t, err := ctyjson.ImpliedType(data); err == nil {
			if v, err := ctyjson.Unmarshal(data, t); err == nil {
				return v, nil
			}
		}
		return cty.StringVal(string(data)), nil
	}
	v, err := ctyjson.Unmarshal(data, want)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode element as %s: %w", want.FriendlyName(), err)
	}
	return v, nil
}
