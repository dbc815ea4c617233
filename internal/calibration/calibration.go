// Package calibration evaluates the numeric raw-to-engineering conversions
// declared by an instrument database: polynomial calibrations (MCF rows) and
// point-curve calibrations (CAP rows). Evaluators are pure and carry their
// own validity: a malformed definition produces an evaluator that reports
// ok=false instead of an error, so one bad calibration row cannot abort the
// decoding of a whole packet stream.
package calibration

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/interp"
)

// PolynomialDegree is the number of coefficients a polynomial calibration
// carries (A0..A4).
const PolynomialDegree = 5

// Polynomial is one MCF calibration: y = A0 + A1*x + A2*x^2 + A3*x^3 + A4*x^4.
type Polynomial struct {
	Ident  string
	Coeffs [PolynomialDegree]float64

	valid bool
}

// NewPolynomial parses the textual coefficient columns of one MCF row. Any
// coefficient that does not parse as a number marks the whole polynomial
// invalid; evaluation then reports ok=false.
func NewPolynomial(ident string, raw []string) *Polynomial {
	p := &Polynomial{Ident: ident, valid: true}
	if len(raw) > PolynomialDegree {
		p.valid = false
		return p
	}
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			p.valid = false
			return p
		}
		p.Coeffs[i] = v
	}
	return p
}

// Valid reports whether the polynomial may be evaluated.
func (p *Polynomial) Valid() bool { return p.valid }

// ApplyScalar evaluates the polynomial at x.
func (p *Polynomial) ApplyScalar(x float64) (float64, bool) {
	if !p.valid {
		return 0, false
	}
	y := 0.0
	for i := PolynomialDegree - 1; i >= 0; i-- {
		y = y*x + p.Coeffs[i]
	}
	return y, true
}

// Apply evaluates the polynomial element-wise over xs.
func (p *Polynomial) Apply(xs []float64) ([]float64, bool) {
	if !p.valid {
		return nil, false
	}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i], _ = p.ApplyScalar(x)
	}
	return ys, true
}

// Curve is one CAP calibration: a set of (x, y) support points. Two points
// define an exact line that also extends beyond the segment; three or more
// points are fitted with a natural cubic spline, and values requested outside
// the support range are whatever the spline routine yields there.
type Curve struct {
	Ident string

	xs, ys  []float64
	valid   bool
	predict func(float64) float64
}

type curvePoint struct{ x, y float64 }

// NewCurve parses the textual support points of one calibration curve.
// Fewer than two points, unparsable values, or duplicate x positions mark
// the curve invalid.
func NewCurve(ident string, xraw, yraw []string) *Curve {
	c := &Curve{Ident: ident}
	if len(xraw) != len(yraw) || len(xraw) < 2 {
		return c
	}
	pts := make([]curvePoint, len(xraw))
	for i := range xraw {
		x, errX := strconv.ParseFloat(xraw[i], 64)
		y, errY := strconv.ParseFloat(yraw[i], 64)
		if errX != nil || errY != nil {
			return c
		}
		pts[i] = curvePoint{x: x, y: y}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].x < pts[j].x })
	c.xs = make([]float64, len(pts))
	c.ys = make([]float64, len(pts))
	for i, pt := range pts {
		c.xs[i] = pt.x
		c.ys[i] = pt.y
	}
	for i := 1; i < len(c.xs); i++ {
		if c.xs[i] == c.xs[i-1] {
			return c
		}
	}

	if len(c.xs) == 2 {
		x0, y0 := c.xs[0], c.ys[0]
		slope := (c.ys[1] - y0) / (c.xs[1] - x0)
		c.predict = func(x float64) float64 { return (x-x0)*slope + y0 }
		c.valid = true
		return c
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(c.xs, c.ys); err != nil {
		return c
	}
	c.predict = spline.Predict
	c.valid = true
	return c
}

// Valid reports whether the curve may be evaluated.
func (c *Curve) Valid() bool { return c.valid }

// Len returns the number of support points.
func (c *Curve) Len() int { return len(c.xs) }

// Points returns copies of the support points in ascending x order.
func (c *Curve) Points() (xs, ys []float64) {
	xs = append(xs, c.xs...)
	ys = append(ys, c.ys...)
	return xs, ys
}

// ApplyScalar evaluates the curve at x.
func (c *Curve) ApplyScalar(x float64) (float64, bool) {
	if !c.valid {
		return 0, false
	}
	return c.predict(x), true
}

// Apply evaluates the curve element-wise over xs.
func (c *Curve) Apply(xs []float64) ([]float64, bool) {
	if !c.valid {
		return nil, false
	}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = c.predict(x)
	}
	return ys, true
}
