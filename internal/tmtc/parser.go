package tmtc

import (
	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

// Parameter is one parsed field. Value holds uint64 for unsigned, time and
// opaque stream types, int64 for signed ones, and []any after same-named
// siblings have been merged. Order disambiguates repeated instances of the
// same field across repeat-group iterations.
type Parameter struct {
	Name     string
	Value    any
	Desc     *idb.ParameterInfo
	Order    int
	Children []*Parameter
}

// Parse walks a layout tree over a packet's application data and returns
// the parameter forest of the tree's top-level fields. The tree is never
// mutated: runtime repeat counts decoded from the data live only in the
// walk. Parsing the same data against the same tree always yields the same
// forest.
func Parse(data []byte, tree *idb.StructureNode) ([]*Parameter, error) {
	r := NewReader(data)
	return parseLevel(r, tree.Children, 0)
}

func parseLevel(r *Reader, nodes []*idb.StructureNode, order int) ([]*Parameter, error) {
	out := make([]*Parameter, 0, len(nodes))
	for _, node := range nodes {
		p, err := parseNode(r, node, order)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseNode(r *Reader, node *idb.StructureNode, order int) (*Parameter, error) {
	desc := node.Param
	switch desc.Kind {
	case idb.Static:
		// Static fields address the buffer absolutely.
		if err := r.Seek(desc.ByteOffset*8 + desc.BitOffset); err != nil {
			return nil, errors.Wrapf(err, "field %s", desc.Name)
		}
	case idb.Variable:
		// Variable fields shift relative to the end of the previous
		// field; negative shifts rewind over overlapping data.
		if err := r.Skip(desc.BitShift); err != nil {
			return nil, errors.Wrapf(err, "field %s", desc.Name)
		}
	}

	value, err := readValue(r, desc)
	if err != nil {
		return nil, err
	}
	p := &Parameter{Name: node.Name, Value: value, Desc: desc, Order: order}
	if len(node.Children) == 0 {
		return p, nil
	}

	// The field's own decoded value is the runtime repeat count for its
	// group. Declared group sizes only shaped the tree.
	count := repeatCount(value)
	if count <= 0 {
		// Zero is the documented empty case for the continuation
		// selector; anywhere else it deserves a note.
		if !(node.Name == ContinuationBitsName && count == 0) {
			monitoring.Logf("WARN: tmtc: repeat count %d for %s, skipping group", count, node.Name)
		}
		return p, nil
	}
	for i := 0; i < count; i++ {
		children, err := parseLevel(r, node.Children, i)
		if err != nil {
			return nil, err
		}
		p.Children = append(p.Children, children...)
	}
	return p, nil
}

func readValue(r *Reader, desc *idb.ParameterInfo) (any, error) {
	switch desc.SType {
	case "U", "T", "O":
		// Time and opaque fields are carried as raw unsigned bits and
		// interpreted by calling code.
		v, err := r.ReadUnsigned(desc.Width)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", desc.Name)
		}
		return v, nil
	case "I":
		v, err := r.ReadSigned(desc.Width)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", desc.Name)
		}
		return v, nil
	default:
		return nil, errors.Wrapf(ErrDecode, "unimplemented stream type %q (width %d) for field %s",
			desc.SType, desc.Width, desc.Name)
	}
}

func repeatCount(v any) int {
	switch n := v.(type) {
	case uint64:
		return int(n)
	case int64:
		return int(n)
	}
	return 0
}
