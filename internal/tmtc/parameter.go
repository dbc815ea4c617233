package tmtc

import (
	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
)

// ContinuationBitsName is the 2-bit continuation selector controlling how
// many trailing bytes encode a count field.
const ContinuationBitsName = "NIXD0159"

// ContinuationCountName is the parameter the continuation selector unpacks
// into.
const ContinuationCountName = "NIX00065"

// Merge consolidates a parse forest in place: repeat groups whose children
// are all leaves collapse into one array-valued parameter per distinct
// name, mixed levels merge node by node, and continuation selectors unpack
// into their count parameter. Merging an already-flat forest changes
// nothing.
func Merge(params []*Parameter) ([]*Parameter, error) {
	for i, p := range params {
		if p.Name == ContinuationBitsName {
			u, err := unpackContinuation(p)
			if err != nil {
				return nil, err
			}
			params[i] = u
			continue
		}
		if err := MergeChildren(p); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// MergeChildren merges one parameter's children. A child set made entirely
// of leaves, none being the continuation selector, is grouped by name with
// values concatenated in encounter order; otherwise each child is handled
// on its own, continuation selectors by unpacking.
func MergeChildren(p *Parameter) error {
	if len(p.Children) == 0 {
		return nil
	}
	mergeable := true
	for _, c := range p.Children {
		if len(c.Children) > 0 || c.Name == ContinuationBitsName {
			mergeable = false
			break
		}
	}
	if mergeable {
		p.Children = mergeLeaves(p.Children)
		return nil
	}
	for i, c := range p.Children {
		if c.Name == ContinuationBitsName {
			u, err := unpackContinuation(c)
			if err != nil {
				return err
			}
			p.Children[i] = u
			continue
		}
		if err := MergeChildren(c); err != nil {
			return err
		}
	}
	return nil
}

func mergeLeaves(children []*Parameter) []*Parameter {
	var order []string
	values := make(map[string][]any)
	descs := make(map[string]*idb.ParameterInfo)
	for _, c := range children {
		if _, seen := values[c.Name]; !seen {
			order = append(order, c.Name)
			descs[c.Name] = c.Desc
		}
		values[c.Name] = append(values[c.Name], c.Value)
	}
	merged := make([]*Parameter, 0, len(order))
	for _, name := range order {
		merged = append(merged, &Parameter{Name: name, Value: values[name], Desc: descs[name]})
	}
	return merged
}

// unpackContinuation applies the continuation-selector law. Selector 0
// means a count of one with no bytes consumed; 1 means the count is the
// single child byte (2-255); 2 forms the count from two child bytes as
// high<<8|low (256-65535); anything else cannot be decoded.
func unpackContinuation(p *Parameter) (*Parameter, error) {
	out := &Parameter{Name: ContinuationCountName, Order: p.Order}
	if len(p.Children) > 0 {
		out.Desc = p.Children[0].Desc
	}
	switch sel := repeatCount(p.Value); sel {
	case 0:
		out.Value = uint64(1)
	case 1:
		if len(p.Children) < 1 {
			return nil, errors.Wrapf(ErrDecode, "continuation selector 1 for %s without its count byte", p.Name)
		}
		out.Value = p.Children[0].Value
	case 2:
		if len(p.Children) < 2 {
			return nil, errors.Wrapf(ErrDecode, "continuation selector 2 for %s without its count bytes", p.Name)
		}
		high := repeatCount(p.Children[0].Value)
		low := repeatCount(p.Children[1].Value)
		out.Value = uint64(high)<<8 | uint64(low)
	default:
		return nil, errors.Wrapf(ErrDecode, "continuation selector %d for %s out of range 0-2", sel, p.Name)
	}
	return out, nil
}

// Record is a flat named-value container preserving first-seen name order,
// one per decoded packet.
type Record struct {
	names  []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Names lists the record's fields in first-seen order.
func (r *Record) Names() []string { return r.names }

// Get returns a field's value.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// absorb adds a value under name, appending to an existing entry and
// promoting a scalar to a sequence on first collision.
func (r *Record) absorb(name string, v any) {
	old, ok := r.values[name]
	if !ok {
		r.names = append(r.names, name)
		r.values[name] = v
		return
	}
	if list, isList := old.([]any); isList {
		r.values[name] = append(list, v)
		return
	}
	r.values[name] = []any{old, v}
}

// Flatten absorbs a parameter and its children into rec: nested children
// recurse first, leaf children are absorbed directly, then the node's own
// value is absorbed under its own name. The node's children are cleared.
func Flatten(p *Parameter, rec *Record) {
	for _, c := range p.Children {
		if len(c.Children) > 0 {
			Flatten(c, rec)
			continue
		}
		rec.absorb(c.Name, c.Value)
	}
	p.Children = nil
	rec.absorb(p.Name, p.Value)
}

// FlattenAll flattens a merged forest into one fresh record.
func FlattenAll(params []*Parameter) *Record {
	rec := NewRecord()
	for _, p := range params {
		Flatten(p, rec)
	}
	return rec
}
