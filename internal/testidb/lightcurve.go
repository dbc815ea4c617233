package testidb

// Canonical (21, 6, 30) light-curve packet definition shared by the parser,
// catalog and engineering tests. The variable section carries a fixed
// prefix (SSID, compression schema, integration duration, energy
// calibration flag) followed by one repeat group counted by the number of
// energy bins, each iteration holding a bin edge and a count value.
const (
	LightCurveServiceType    = 21
	LightCurveServiceSubtype = 6
	LightCurveSSID           = 30

	LightCurveSPID int64 = 54118
	LightCurveTPSD int64 = 54118
)

// AddLightCurve installs the light-curve packet type, its parameters and
// their calibrations into the fixture.
func (b *Builder) AddLightCurve() {
	b.t.Helper()
	b.AddPacket(LightCurveServiceType, LightCurveServiceSubtype, LightCurveSSID,
		LightCurveSPID, LightCurveTPSD, "X-ray science data: light curves")
	b.SetPI1Position(LightCurveServiceType, LightCurveServiceSubtype, 16, 8)

	b.AddVariableParam(LightCurveTPSD, 1, 0, 0, Param{
		Name: "NIXD0154", Descr: "Science data SSID", PTC: 3, PFC: 4, Width: 8})
	b.AddVariableParam(LightCurveTPSD, 2, 0, 0, Param{
		Name: "NIX00120", Descr: "Compression schema counts", PTC: 3, PFC: 4, Width: 8})
	b.AddVariableParam(LightCurveTPSD, 3, 0, 0, Param{
		Name: "NIX00405", Descr: "Integration duration", PTC: 3, PFC: 12, Width: 16,
		Curtx: "CIX00405", Categ: "N", Unit: "s"})
	b.AddVariableParam(LightCurveTPSD, 4, 0, 0, Param{
		Name: "NIXD0407", Descr: "Energy calibration applied", PTC: 3, PFC: 4, Width: 8,
		Curtx: "CAAT0407", Categ: "S"})
	b.AddVariableParam(LightCurveTPSD, 5, 2, 0, Param{
		Name: "NIX00270", Descr: "Number of energy bins", PTC: 3, PFC: 4, Width: 8})
	b.AddVariableParam(LightCurveTPSD, 6, 0, 0, Param{
		Name: "NIX00271", Descr: "Energy bin edge", PTC: 3, PFC: 4, Width: 8})
	b.AddVariableParam(LightCurveTPSD, 7, 0, 0, Param{
		Name: "NIX00272", Descr: "Light curve counts", PTC: 3, PFC: 12, Width: 16})

	// Integration duration ticks to seconds.
	b.AddPolynomial("CIX00405", [5]string{"0", "0.1", "0", "0", "0"})
	b.AddTextual("CAAT0407", 0, 0, "False")
	b.AddTextual("CAAT0407", 1, 1, "True")
}

// LightCurvePayload is the reference application payload matching
// AddLightCurve: SSID 30, schema 7, duration 300, calibration flag 1, then
// three energy bins (16, 1000), (32, 2000), (48, 3000).
func LightCurvePayload() []byte {
	return []byte{
		0x1E,       // NIXD0154 = 30
		0x07,       // NIX00120 = 7
		0x01, 0x2C, // NIX00405 = 300
		0x01,             // NIXD0407 = 1
		0x03,             // NIX00270 = 3 energy bins
		0x10, 0x03, 0xE8, // bin 1: edge 16, counts 1000
		0x20, 0x07, 0xD0, // bin 2: edge 32, counts 2000
		0x30, 0x0B, 0xB8, // bin 3: edge 48, counts 3000
	}
}
