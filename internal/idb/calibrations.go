package idb

import (
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/calibration"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

// CalibrationPolynomial fetches the coefficient row of a polynomial
// calibration by its reference id. ok is false when the id has no MCF row.
// A row that exists but does not parse still comes back ok; it reports its
// own invalidity on evaluation.
func (c *IDB) CalibrationPolynomial(ident string) (*calibration.Polynomial, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.numeric[ident]; ok && entry.poly != nil {
		return entry.poly, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return nil, false, err
	}

	var raw [calibration.PolynomialDegree]sql.NullString
	row := db.QueryRow(`
		SELECT MCF_POL1, MCF_POL2, MCF_POL3, MCF_POL4, MCF_POL5
		FROM MCF
		WHERE MCF_IDENT = ?`, ident)
	switch err := row.Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4]); {
	case errors.Is(err, sql.ErrNoRows):
		monitoring.Logf("WARN: idb %s: no polynomial calibration %q", c.version, ident)
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "idb: polynomial calibration %q", ident)
	}

	// Unfilled high-order coefficient columns mean zero, not malformed.
	coeffs := make([]string, len(raw))
	for i, s := range raw {
		if !s.Valid || s.String == "" {
			coeffs[i] = "0"
			continue
		}
		coeffs[i] = s.String
	}
	poly := calibration.NewPolynomial(ident, coeffs)
	entry := c.numeric[ident]
	entry.poly = poly
	c.numeric[ident] = entry
	return poly, true, nil
}

// CalibrationCurve fetches the support points of a curve calibration
// referenced by a parameter. ok is false when the parameter carries no
// calibration reference or the reference has no CAP rows.
func (c *IDB) CalibrationCurve(param *ParameterInfo) (*calibration.Curve, bool, error) {
	if param == nil || !param.IsCalibrated() {
		return nil, false, nil
	}
	ident := param.Curtx

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.numeric[ident]; ok && entry.curve != nil {
		return entry.curve, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.Query(`
		SELECT CAP_XVALS, CAP_YVALS
		FROM CAP
		WHERE CAP_NUMBR = ?
		ORDER BY CAST(CAP_XVALS AS REAL) ASC`, ident)
	if err != nil {
		return nil, false, errors.Wrapf(err, "idb: curve calibration %q", ident)
	}
	defer rows.Close()

	var xs, ys []string
	for rows.Next() {
		var x, y string
		if err := rows.Scan(&x, &y); err != nil {
			return nil, false, errors.Wrapf(err, "idb: curve calibration %q", ident)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "idb: curve calibration %q", ident)
	}
	if len(xs) == 0 {
		monitoring.Logf("WARN: idb %s: no curve calibration %q for parameter %s",
			c.version, ident, param.Name)
		return nil, false, nil
	}
	curve := calibration.NewCurve(ident, xs, ys)
	entry := c.numeric[ident]
	entry.curve = curve
	c.numeric[ident] = entry
	return curve, true, nil
}

// TextualMapping resolves the enumeration label covering raw in one of the
// reference's value ranges. "True" and "False" labels come back as bools.
// With no covering range the raw value is returned unchanged, which keeps a
// gap in the enumeration table from dropping data; the gap is logged.
func (c *IDB) TextualMapping(curtx string, raw int64) (any, error) {
	key := textualKey{curtx: curtx, raw: raw}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.textual[key]; ok {
		return v, nil
	}
	db, err := c.conn()
	if err != nil {
		return nil, err
	}

	var label string
	row := db.QueryRow(`
		SELECT TXP_ALTXT
		FROM TXP
		WHERE TXP_NUMBR = ? AND TXP_FROM <= ? AND TXP_TO >= ?`, curtx, raw, raw)
	switch err := row.Scan(&label); {
	case errors.Is(err, sql.ErrNoRows):
		monitoring.Logf("WARN: idb %s: no textual mapping %q for value %d, keeping raw",
			c.version, curtx, raw)
		return raw, nil
	case err != nil:
		return nil, errors.Wrapf(err, "idb: textual mapping %q value %d", curtx, raw)
	}

	var value any
	switch label {
	case "True":
		value = true
	case "False":
		value = false
	default:
		value = label
	}
	c.textual[key] = value
	return value, nil
}

// CalibrationParameters lists every parameter of a packet that declares a
// calibration reference, optionally narrowed to one parameter name or one
// reference id. An unknown packet type yields an empty list.
func (c *IDB) CalibrationParameters(serviceType, serviceSubtype, pi1 int, nameFilter, curtxFilter string) ([]*ParameterInfo, error) {
	key := calibFilterKey{
		ident:       identKey{serviceType, serviceSubtype, pi1},
		nameFilter:  nameFilter,
		curtxFilter: curtxFilter,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if list, ok := c.calibLists[key]; ok {
		return list, nil
	}
	tree, ok, err := c.structureLocked(key.ident)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var list []*ParameterInfo
	tree.Walk(func(n *StructureNode) {
		p := n.Param
		if !p.IsCalibrated() {
			return
		}
		if nameFilter != "" && p.Name != nameFilter {
			return
		}
		if curtxFilter != "" && p.Curtx != curtxFilter {
			return
		}
		list = append(list, p)
	})
	c.calibLists[key] = list
	return list, nil
}
