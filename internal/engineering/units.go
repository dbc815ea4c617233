package engineering

// Catalog units pass through verbatim except temperatures, which the
// pipeline normalizes to Kelvin.
const (
	unitCelsius = "degC"
	unitKelvin  = "K"

	celsiusOffset = 273.15
)

func convertUnit(p *Parameter) {
	if p.Unit != unitCelsius || p.Engineering == nil {
		return
	}
	switch v := p.Engineering.(type) {
	case float64:
		p.Engineering = v + celsiusOffset
		p.Unit = unitKelvin
	case []float64:
		out := make([]float64, len(v))
		for i, y := range v {
			out[i] = y + celsiusOffset
		}
		p.Engineering = out
		p.Unit = unitKelvin
	}
}
