package tmtc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

func varParam(name, stype string, width int) *idb.ParameterInfo {
	return &idb.ParameterInfo{Name: name, SType: stype, Width: width, Kind: idb.Variable}
}

func staticParam(name, stype string, width, byteOff, bitOff int) *idb.ParameterInfo {
	return &idb.ParameterInfo{Name: name, SType: stype, Width: width, Kind: idb.Static,
		ByteOffset: byteOff, BitOffset: bitOff}
}

func node(p *idb.ParameterInfo, children ...*idb.StructureNode) *idb.StructureNode {
	return &idb.StructureNode{Name: p.Name, Param: p, Children: children}
}

func tree(children ...*idb.StructureNode) *idb.StructureNode {
	return &idb.StructureNode{Name: "top", Children: children}
}

func TestParseFlatUnsigned(t *testing.T) {
	tr := tree(
		node(varParam("A", "U", 8)),
		node(varParam("B", "U", 16)),
	)
	params, err := Parse([]byte{0x05, 0x01, 0x02}, tr)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, uint64(5), params[0].Value)
	assert.Equal(t, uint64(0x0102), params[1].Value)
}

func TestParseSigned(t *testing.T) {
	tr := tree(node(varParam("A", "I", 8)))
	params, err := Parse([]byte{0xFE}, tr)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), params[0].Value)
}

func TestParseTimeAndOpaqueReadRaw(t *testing.T) {
	tr := tree(
		node(varParam("T", "T", 16)),
		node(varParam("O", "O", 8)),
	)
	params, err := Parse([]byte{0xBE, 0xEF, 0x7A}, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xBEEF), params[0].Value)
	assert.Equal(t, uint64(0x7A), params[1].Value)
}

func TestParseStaticAbsoluteOffsets(t *testing.T) {
	// B overlaps the low nibble of A: static fields address the buffer
	// absolutely, whatever was read before.
	tr := tree(
		node(staticParam("A", "U", 8, 0, 0)),
		node(staticParam("B", "U", 4, 0, 4)),
		node(staticParam("C", "U", 8, 2, 0)),
	)
	params, err := Parse([]byte{0xA5, 0x00, 0x42}, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA5), params[0].Value)
	assert.Equal(t, uint64(0x5), params[1].Value)
	assert.Equal(t, uint64(0x42), params[2].Value)
}

func TestParseNegativeShiftRereads(t *testing.T) {
	shifted := varParam("B", "U", 8)
	shifted.BitShift = -8
	tr := tree(
		node(varParam("A", "U", 8)),
		node(shifted),
		node(varParam("C", "U", 8)),
	)
	params, err := Parse([]byte{0x11, 0x22}, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x11), params[0].Value)
	assert.Equal(t, uint64(0x11), params[1].Value)
	assert.Equal(t, uint64(0x22), params[2].Value)
}

func TestParsePositiveShiftSkips(t *testing.T) {
	shifted := varParam("B", "U", 8)
	shifted.BitShift = 8
	tr := tree(
		node(varParam("A", "U", 8)),
		node(shifted),
	)
	params, err := Parse([]byte{0x11, 0x22, 0x33}, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x33), params[1].Value)
}

func TestParseRepeatGroup(t *testing.T) {
	tr := tree(
		node(varParam("N", "U", 8),
			node(varParam("X", "U", 8)),
			node(varParam("Y", "U", 8)),
		),
	)
	params, err := Parse([]byte{0x02, 0x0A, 0x0B, 0x0C, 0x0D}, tr)
	require.NoError(t, err)
	require.Len(t, params, 1)

	n := params[0]
	assert.Equal(t, uint64(2), n.Value)
	require.Len(t, n.Children, 4)
	assert.Equal(t, []string{"X", "Y", "X", "Y"},
		[]string{n.Children[0].Name, n.Children[1].Name, n.Children[2].Name, n.Children[3].Name})
	assert.Equal(t, uint64(0x0A), n.Children[0].Value)
	assert.Equal(t, uint64(0x0D), n.Children[3].Value)
	// Iteration index is recorded for later disambiguation.
	assert.Equal(t, 0, n.Children[0].Order)
	assert.Equal(t, 1, n.Children[2].Order)
}

func TestParseNestedRepeatGroups(t *testing.T) {
	tr := tree(
		node(varParam("OUTER", "U", 8),
			node(varParam("INNER", "U", 8),
				node(varParam("V", "U", 8)),
			),
		),
	)
	// OUTER=2: first INNER=2 with values 1,2; second INNER=1 with value 9.
	params, err := Parse([]byte{0x02, 0x02, 0x01, 0x02, 0x01, 0x09}, tr)
	require.NoError(t, err)
	outer := params[0]
	require.Len(t, outer.Children, 2)
	assert.Equal(t, uint64(2), outer.Children[0].Value)
	require.Len(t, outer.Children[0].Children, 2)
	assert.Equal(t, uint64(1), outer.Children[0].Children[0].Value)
	assert.Equal(t, uint64(2), outer.Children[0].Children[1].Value)
	require.Len(t, outer.Children[1].Children, 1)
	assert.Equal(t, uint64(9), outer.Children[1].Children[0].Value)
}

func TestParseZeroRepeatSkipsGroup(t *testing.T) {
	defer monitoring.SetLogger(nil)
	var warned bool
	monitoring.SetLogger(func(format string, v ...interface{}) { warned = true })

	tr := tree(
		node(varParam("N", "U", 8),
			node(varParam("X", "U", 8)),
		),
		node(varParam("AFTER", "U", 8)),
	)
	params, err := Parse([]byte{0x00, 0x77}, tr)
	require.NoError(t, err)
	assert.Empty(t, params[0].Children)
	assert.Equal(t, uint64(0x77), params[1].Value)
	assert.True(t, warned, "zero repeat count outside the continuation selector should log")

	monitoring.SetLogger(nil)
}

func TestParseZeroContinuationSelectorIsSilent(t *testing.T) {
	var warned bool
	monitoring.SetLogger(func(format string, v ...interface{}) { warned = true })
	defer monitoring.SetLogger(nil)

	tr := tree(
		node(varParam(ContinuationBitsName, "U", 2),
			node(varParam(ContinuationCountName, "U", 8)),
		),
	)
	params, err := Parse([]byte{0x00}, tr)
	require.NoError(t, err)
	assert.Empty(t, params[0].Children)
	assert.False(t, warned, "a zero continuation selector is a valid empty case")
}

func TestParseUnknownStreamType(t *testing.T) {
	tr := tree(node(varParam("NIX00999", "Z", 8)))
	_, err := Parse([]byte{0x00}, tr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Contains(t, err.Error(), "NIX00999")
	assert.Contains(t, err.Error(), "Z")
}

func TestParseExhaustedBuffer(t *testing.T) {
	tr := tree(node(varParam("A", "U", 32)))
	_, err := Parse([]byte{0x01, 0x02}, tr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBits))
}

func TestParseDeterminism(t *testing.T) {
	tr := tree(
		node(varParam("HDR", "U", 8)),
		node(varParam("N", "U", 8),
			node(varParam("X", "U", 16)),
		),
	)
	data := []byte{0x01, 0x02, 0xAA, 0xBB, 0xCC, 0xDD}

	first, err := Parse(data, tr)
	require.NoError(t, err)
	second, err := Parse(data, tr)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated parse differs (-first +second):\n%s", diff)
	}
}
