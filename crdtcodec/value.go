package crdtcodec

import (
	"github.com/crdtkit/jsoncrdt/common"
	"github.com/ugorji/go/codec"
)

// cborHandle is shared across the package; ugorji's Handle is safe for
// concurrent use once configured and is not itself an allocation per call.
var cborHandle = &codec.CborHandle{}

// EncodeLeaf CBOR-encodes a Con scalar (the "Value Codec Surface", C2,
// consumed here rather than reimplemented).
func EncodeLeaf(value interface{}) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, cborHandle)
	if err := enc.Encode(value); err != nil {
		return nil, common.ErrInvalidPayload{Message: err.Error()}
	}
	return out, nil
}

// DecodeLeaf CBOR-decodes a Con scalar previously written by EncodeLeaf.
func DecodeLeaf(data []byte) (interface{}, error) {
	var out interface{}
	dec := codec.NewDecoderBytes(data, cborHandle)
	if err := dec.Decode(&out); err != nil {
		return nil, common.ErrInvalidPayload{Message: err.Error()}
	}
	return out, nil
}
