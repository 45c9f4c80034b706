package crdtcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crdtkit/jsoncrdt/common"
	"github.com/crdtkit/jsoncrdt/crdtpatch"
)

func TestPatchBinaryRoundTripsShortFormHeader(t *testing.T) {
	b := crdtpatch.NewPatchBuilder(2, 0)
	b.ConVal("x")
	p := b.Flush()

	table := common.NewClockTable(common.NewClock(2))
	data, err := EncodePatch(p, table)
	require.NoError(t, err)

	decoded, err := DecodePatch(data, table)
	require.NoError(t, err)
	require.Equal(t, p.ID(), decoded.ID())
	require.Equal(t, p.Ops, decoded.Ops)
}

// TestPatchBinaryRoundTripsLongFormHeader forces EncodeRelative to emit its
// long form (0x80) for the patch's first op id by giving the authoring
// session a table entry whose base time is more than 15 units ahead of the
// op's own time — the exact byte that collided with the old serverModeMarker.
func TestPatchBinaryRoundTripsLongFormHeader(t *testing.T) {
	b := crdtpatch.NewPatchBuilder(9, 20)
	b.ConVal("first")
	p := b.Flush()

	table := common.NewClockTable(common.NewClock(1))
	table.EnsureIndex(9, 100) // base time far ahead of 20: diff = 80 > 15

	data, err := EncodePatch(p, table)
	require.NoError(t, err)
	require.Equal(t, byte(longFormMarker), data[0], "expected the long form marker, not the server-mode tag")

	decoded, err := DecodePatch(data, table)
	require.NoError(t, err)
	require.Equal(t, p.ID(), decoded.ID())
	require.Equal(t, p.Ops, decoded.Ops)
}

// TestPatchBinaryRoundTripsMultiOpLongStringPatch round-trips a three-op
// patch (NewStr, a 20-char InsStr, the root InsVal) so op count and op
// bodies are covered; its header takes the short form, since the table's
// base time for session 3 is 0.
func TestPatchBinaryRoundTripsMultiOpLongStringPatch(t *testing.T) {
	b := crdtpatch.NewPatchBuilder(3, 0)
	strID := b.StrNode()
	b.InsStr(strID, common.Origin, []rune(strings.Repeat("a", 20)))
	b.Root(strID)
	p := b.Flush()

	table := common.NewClockTable(common.NewClock(3))
	data, err := EncodePatch(p, table)
	require.NoError(t, err)

	decoded, err := DecodePatch(data, table)
	require.NoError(t, err)
	require.Equal(t, p.ID(), decoded.ID())
	require.Equal(t, p.Ops, decoded.Ops)
}

func TestPatchBinaryRoundTripsServerModeHeader(t *testing.T) {
	b := crdtpatch.NewPatchBuilder(common.SidServer, 42)
	b.ConVal("server-authored")
	p := b.Flush()

	table := common.NewClockTable(common.NewClock(1))
	data, err := EncodePatch(p, table)
	require.NoError(t, err)
	require.Equal(t, byte(serverModeMarker), data[0])

	decoded, err := DecodePatch(data, table)
	require.NoError(t, err)
	require.Equal(t, p.ID(), decoded.ID())
	require.Equal(t, p.Ops, decoded.Ops)
}
