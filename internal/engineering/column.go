package engineering

import (
	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
	"github.com/i4Ds/STIXCore-sub001/internal/products"

	"github.com/cockroachdb/errors"
)

// ApplyColumn calibrates one table column in place. Rows are partitioned
// into runs sharing the IDB version in effect at their onboard time, each
// run is calibrated with that version's catalog, and the results recombine
// in row order. Rows whose calibration cannot be evaluated keep their raw
// value.
func ApplyColumn(tbl *products.Table, name string, mgr *idb.Manager) error {
	col, ok := tbl.Column(name)
	if !ok {
		return errors.Newf("engineering: table has no column %q", name)
	}
	rows := tbl.Rows()
	if rows == 0 {
		return nil
	}

	out := make([]any, rows)
	copy(out, col.Values)
	unit := col.Meta.Unit

	version, err := mgr.FindVersion(tbl.Time[0])
	if err != nil {
		return err
	}
	start := 0
	for i := 1; i <= rows; i++ {
		next := version
		if i < rows {
			if next, err = mgr.FindVersion(tbl.Time[i]); err != nil {
				return err
			}
			if next == version {
				continue
			}
		}
		if err := applyRun(tbl, col, out, start, i, version, mgr, &unit); err != nil {
			return err
		}
		version, start = next, i
	}

	if err := tbl.SetValues(name, out); err != nil {
		return err
	}
	col.Meta.Unit = unit
	return nil
}

// applyRun calibrates rows [lo, hi) against one catalog version.
func applyRun(tbl *products.Table, col *products.Column, out []any, lo, hi int,
	version string, mgr *idb.Manager, unit *string) error {

	cat, err := mgr.IDB(version)
	if err != nil {
		return err
	}
	descs, err := cat.CalibrationParameters(tbl.ServiceType, tbl.ServiceSubtype, tbl.PI1,
		col.Meta.RawName, col.Meta.CalibRef)
	if err != nil {
		return err
	}
	if len(descs) == 0 {
		monitoring.Logf("WARN: engineering: idb %s knows no calibrated parameter %s for (%d, %d, %d), rows kept raw",
			version, col.Meta.RawName, tbl.ServiceType, tbl.ServiceSubtype, tbl.PI1)
		return nil
	}

	desc := descs[0]
	for i := lo; i < hi; i++ {
		p, err := Apply(col.Values[i], desc, cat)
		if err != nil {
			return err
		}
		if p.Engineering != nil {
			out[i] = p.Engineering
		}
		if p.Unit != "" {
			*unit = p.Unit
		}
	}
	return nil
}
