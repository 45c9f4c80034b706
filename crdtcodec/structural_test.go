package crdtcodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdt"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

func modelWith(t *testing.T, value interface{}) *crdt.Model {
	t.Helper()
	m := crdt.NewModel(1)
	b := crdtpatch.NewPatchBuilderAt(common.Timestamp{Sid: 1, Time: 0})
	b.Set(value)
	require.NoError(t, b.Flush().Apply(m))
	return m
}

func TestStructuralBinaryRoundTripsEmptyModel(t *testing.T) {
	m := crdt.NewModel(1)
	data, err := EncodeStructuralBinary(m)
	require.NoError(t, err)

	// 4-byte tree-length prefix (== 1) followed by the single empty-root
	// marker byte, ahead of the clock table.
	require.Equal(t, []byte{0, 0, 0, 1, emptyRootMarker}, data[:5])

	decoded, err := DecodeStructuralBinary(data)
	require.NoError(t, err)
	require.Nil(t, decoded.View())
}

func TestStructuralBinaryRoundTripsNestedDocument(t *testing.T) {
	m := modelWith(t, map[string]interface{}{
		"name":  "hello",
		"items": []interface{}{"a", "b", float64(3)},
		"flag":  true,
	})

	data, err := EncodeStructuralBinary(m)
	require.NoError(t, err)

	decoded, err := DecodeStructuralBinary(data)
	require.NoError(t, err)
	require.Equal(t, m.View(), decoded.View())
}

func TestStructuralBinaryRejectsTruncatedInput(t *testing.T) {
	m := modelWith(t, "hello")
	data, err := EncodeStructuralBinary(m)
	require.NoError(t, err)

	_, err = DecodeStructuralBinary(data[:2])
	require.Error(t, err)
}

func TestStructuralBinaryReEncodeIsCanonical(t *testing.T) {
	m := modelWith(t, map[string]interface{}{"a": float64(1), "b": float64(2)})

	first, err := EncodeStructuralBinary(m)
	require.NoError(t, err)

	decoded, err := DecodeStructuralBinary(first)
	require.NoError(t, err)

	second, err := EncodeStructuralBinary(decoded)
	require.NoError(t, err)

	require.Equal(t, first, second)
}
