// Package products carries the column-oriented table that decoded packets
// of one packet type accumulate into: one row per packet, one column per
// parameter, each row stamped with the packet's onboard time. The model is
// deliberately narrow; downstream product generation (FITS and friends)
// lives outside this module.
package products

import (
	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/scet"
)

// Meta ties a column back to the catalog: the raw parameter it came from,
// the calibration reference to apply, and the engineering unit once applied.
type Meta struct {
	RawName  string
	CalibRef string
	Unit     string
}

// Column is one named value series. Values holds one entry per row; an entry
// may itself be a list when the parameter repeats within a packet.
type Column struct {
	Name   string
	Values []any
	Meta   Meta
}

// Table collects rows of one packet type. All columns have exactly one value
// per entry of Time.
type Table struct {
	ServiceType    int
	ServiceSubtype int
	PI1            int

	Time []scet.SCET

	columns []*Column
	index   map[string]*Column
}

// New returns an empty table for one packet type.
func New(serviceType, serviceSubtype, pi1 int) *Table {
	return &Table{
		ServiceType:    serviceType,
		ServiceSubtype: serviceSubtype,
		PI1:            pi1,
		index:          make(map[string]*Column),
	}
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return len(t.Time) }

// AddColumn appends a column. The value count must match the row count and
// the name must be new.
func (t *Table) AddColumn(name string, meta Meta, values []any) error {
	if _, exists := t.index[name]; exists {
		return errors.Newf("products: column %q already exists", name)
	}
	if len(values) != t.Rows() {
		return errors.Newf("products: column %q has %d values for %d rows", name, len(values), t.Rows())
	}
	col := &Column{Name: name, Values: values, Meta: meta}
	t.columns = append(t.columns, col)
	t.index[name] = col
	return nil
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.index[name]
	return c, ok
}

// Columns returns the columns in insertion order.
func (t *Table) Columns() []*Column { return t.columns }

// SetValues replaces a column's values, keeping the row-count invariant.
func (t *Table) SetValues(name string, values []any) error {
	col, ok := t.index[name]
	if !ok {
		return errors.Newf("products: no column %q", name)
	}
	if len(values) != t.Rows() {
		return errors.Newf("products: column %q has %d values for %d rows", name, len(values), t.Rows())
	}
	col.Values = values
	return nil
}
