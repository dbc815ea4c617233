// Package engineering applies a catalog's calibrations to raw decoded
// values. Numeric calibrations (category N) evaluate a polynomial or a
// point curve depending on the reference scheme; status parameters
// (category S) map through the catalog's textual ranges. A calibration that
// exists but cannot be evaluated keeps the raw value and logs, so one bad
// catalog row degrades a column instead of failing a pipeline run.
package engineering

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

// ErrCategory marks calibration declarations this package cannot apply: a
// category letter other than N or S, or a numeric reference outside the
// CIX/CIXP schemes.
var ErrCategory = errors.New("engineering: unsupported calibration")

// Parameter is one raw value with its engineering projection. Engineering
// stays nil when the parameter is uncalibrated or its calibration could not
// be evaluated.
type Parameter struct {
	Name        string
	Raw         any
	Engineering any
	Unit        string
	Desc        *idb.ParameterInfo
}

// evaluator is the shared surface of polynomial and curve calibrations.
type evaluator interface {
	ApplyScalar(x float64) (float64, bool)
	Apply(xs []float64) ([]float64, bool)
}

// Apply calibrates one raw value. Raw may be a scalar or the merged []any
// of a repeat group; the engineering value keeps the same shape.
func Apply(raw any, desc *idb.ParameterInfo, cat *idb.IDB) (Parameter, error) {
	p := Parameter{Name: desc.Name, Raw: raw, Unit: desc.Unit, Desc: desc}
	if !desc.IsCalibrated() {
		return p, nil
	}

	switch desc.Categ {
	case "S":
		eng, err := applyTextual(raw, desc, cat)
		if err != nil {
			return p, err
		}
		p.Engineering = eng
	case "N":
		eng, err := applyNumeric(raw, desc, cat)
		if err != nil {
			return p, err
		}
		p.Engineering = eng
	default:
		return p, errors.Wrapf(ErrCategory, "parameter %s declares category %q", desc.Name, desc.Categ)
	}

	convertUnit(&p)
	return p, nil
}

func applyTextual(raw any, desc *idb.ParameterInfo, cat *idb.IDB) (any, error) {
	if list, ok := raw.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			m, err := cat.TextualMapping(desc.Curtx, rawInt(v))
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	return cat.TextualMapping(desc.Curtx, rawInt(raw))
}

func applyNumeric(raw any, desc *idb.ParameterInfo, cat *idb.IDB) (any, error) {
	eval, ok, err := numericEvaluator(desc, cat)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The catalog already logged the missing reference.
		return nil, nil
	}

	if list, isList := raw.([]any); isList {
		xs := make([]float64, len(list))
		for i, v := range list {
			xs[i] = rawFloat(v)
		}
		ys, ok := eval.Apply(xs)
		if !ok {
			monitoring.Logf("WARN: engineering: calibration %s for %s is invalid, keeping raw",
				desc.Curtx, desc.Name)
			return nil, nil
		}
		return ys, nil
	}

	y, ok := eval.ApplyScalar(rawFloat(raw))
	if !ok {
		monitoring.Logf("WARN: engineering: calibration %s for %s is invalid, keeping raw",
			desc.Curtx, desc.Name)
		return nil, nil
	}
	return y, nil
}

// numericEvaluator resolves a category-N reference: CIXP ids are point
// curves, other CIX ids are polynomials.
func numericEvaluator(desc *idb.ParameterInfo, cat *idb.IDB) (evaluator, bool, error) {
	switch {
	case strings.HasPrefix(desc.Curtx, "CIXP"):
		return cat.CalibrationCurve(desc)
	case strings.HasPrefix(desc.Curtx, "CIX"):
		return cat.CalibrationPolynomial(desc.Curtx)
	}
	return nil, false, errors.Wrapf(ErrCategory, "parameter %s has numeric reference %q outside the CIX/CIXP schemes",
		desc.Name, desc.Curtx)
}

func rawInt(v any) int64 {
	switch n := v.(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func rawFloat(v any) float64 {
	switch n := v.(type) {
	case uint64:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
