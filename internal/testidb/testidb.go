// Package testidb builds throwaway instrument-database files for tests.
//
// A Builder owns a read-write connection to a fresh SQLite file carrying the
// catalog schema; tests insert packet definitions through typed helpers and
// then hand the finished path to idb.Open. The schema mirrors the SCOS-2000
// style tables the catalog queries (PID, PIC, PLF, VPD, PCF, MCF, CAP, TXP
// and the parameter-type validity table).
package testidb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IDB (
	IDB_VERSION TEXT NOT NULL,
	IDB_RELEASE TEXT
);
CREATE TABLE PID (
	PID_TYPE    INTEGER NOT NULL,
	PID_STYPE   INTEGER NOT NULL,
	PID_PI1_VAL INTEGER NOT NULL DEFAULT -1,
	PID_SPID    INTEGER NOT NULL,
	PID_TPSD    INTEGER NOT NULL DEFAULT -1,
	PID_DESCR   TEXT
);
CREATE TABLE PIC (
	PIC_TYPE    INTEGER NOT NULL,
	PIC_STYPE   INTEGER NOT NULL,
	PIC_PI1_OFF INTEGER NOT NULL DEFAULT -1,
	PIC_PI1_WID INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE PLF (
	PLF_NAME  TEXT NOT NULL,
	PLF_SPID  INTEGER NOT NULL,
	PLF_OFFBY INTEGER NOT NULL,
	PLF_OFFBI INTEGER NOT NULL
);
CREATE TABLE VPD (
	VPD_TPSD    INTEGER NOT NULL,
	VPD_POS     INTEGER NOT NULL,
	VPD_NAME    TEXT NOT NULL,
	VPD_GRPSIZE INTEGER NOT NULL DEFAULT 0,
	VPD_FIXREP  INTEGER NOT NULL DEFAULT 0,
	VPD_OFFSET  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE PCF (
	PCF_NAME  TEXT PRIMARY KEY,
	PCF_DESCR TEXT,
	PCF_PTC   INTEGER NOT NULL,
	PCF_PFC   INTEGER NOT NULL,
	PCF_WIDTH INTEGER NOT NULL,
	PCF_CURTX TEXT,
	PCF_CATEG TEXT,
	PCF_UNIT  TEXT
);
CREATE TABLE tblConfigS2KParameterTypes (
	PTC      INTEGER NOT NULL,
	PFC_LB   INTEGER NOT NULL,
	PFC_UB   INTEGER NOT NULL,
	S2K_TYPE TEXT NOT NULL
);
CREATE TABLE MCF (
	MCF_IDENT TEXT PRIMARY KEY,
	MCF_DESCR TEXT,
	MCF_POL1  TEXT,
	MCF_POL2  TEXT,
	MCF_POL3  TEXT,
	MCF_POL4  TEXT,
	MCF_POL5  TEXT
);
CREATE TABLE CAP (
	CAP_NUMBR TEXT NOT NULL,
	CAP_XVALS TEXT NOT NULL,
	CAP_YVALS TEXT NOT NULL
);
CREATE TABLE TXP (
	TXP_NUMBR TEXT NOT NULL,
	TXP_FROM  INTEGER NOT NULL,
	TXP_TO    INTEGER NOT NULL,
	TXP_ALTXT TEXT NOT NULL
);
`

// Builder assembles one catalog file. All helpers fail the test on SQL
// errors, so fixture setup reads linearly.
type Builder struct {
	t    *testing.T
	db   *sql.DB
	path string
}

// New creates a catalog file in a fresh temp directory.
func New(t *testing.T, version string) *Builder {
	t.Helper()
	return NewAt(t, filepath.Join(t.TempDir(), "idb.sqlite"), version)
}

// NewAt creates the catalog at an exact path, for tests laying out a
// versioned directory tree.
func NewAt(t *testing.T, path, version string) *Builder {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	b := &Builder{t: t, db: db, path: path}
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}
	b.exec(`INSERT INTO IDB (IDB_VERSION, IDB_RELEASE) VALUES (?, ?)`, version, version)
	b.seedParameterTypes()
	return b
}

func (b *Builder) exec(query string, args ...any) {
	b.t.Helper()
	if _, err := b.db.Exec(query, args...); err != nil {
		b.t.Fatalf("fixture exec: %v\n%s", err, query)
	}
}

// seedParameterTypes installs the stream-type rows every fixture needs:
// PTC 2/3 decode unsigned, 4 signed, 9 time, 10 opaque. PTC 5 is left out
// deliberately so tests can exercise the unknown-type failure path.
func (b *Builder) seedParameterTypes() {
	for _, r := range []struct {
		ptc, lb, ub int
		stype       string
	}{
		{2, 1, 32, "U"},
		{3, 0, 16, "U"},
		{4, 0, 16, "I"},
		{9, 0, 18, "T"},
		{10, 0, 18, "O"},
	} {
		b.exec(`INSERT INTO tblConfigS2KParameterTypes (PTC, PFC_LB, PFC_UB, S2K_TYPE) VALUES (?, ?, ?, ?)`,
			r.ptc, r.lb, r.ub, r.stype)
	}
}

// AddS2KType adds one stream-type validity row beyond the seeded defaults.
func (b *Builder) AddS2KType(ptc, pfcLB, pfcUB int, stype string) {
	b.t.Helper()
	b.exec(`INSERT INTO tblConfigS2KParameterTypes (PTC, PFC_LB, PFC_UB, S2K_TYPE) VALUES (?, ?, ?, ?)`,
		ptc, pfcLB, pfcUB, stype)
}

// AddPacket registers one packet type. Use tpsd -1 for static packets and
// pi1 -1 when the type has no discriminant.
func (b *Builder) AddPacket(serviceType, serviceSubtype, pi1 int, spid, tpsd int64, descr string) {
	b.t.Helper()
	b.exec(`INSERT INTO PID (PID_TYPE, PID_STYPE, PID_PI1_VAL, PID_SPID, PID_TPSD, PID_DESCR)
	        VALUES (?, ?, ?, ?, ?, ?)`,
		serviceType, serviceSubtype, pi1, spid, tpsd, descr)
}

// SetPI1Position records where the discriminant of a packet family lives in
// the raw packet.
func (b *Builder) SetPI1Position(serviceType, serviceSubtype, byteOffset, bitWidth int) {
	b.t.Helper()
	b.exec(`INSERT INTO PIC (PIC_TYPE, PIC_STYPE, PIC_PI1_OFF, PIC_PI1_WID) VALUES (?, ?, ?, ?)`,
		serviceType, serviceSubtype, byteOffset, bitWidth)
}

// Param carries the characteristics shared by static and variable fields.
type Param struct {
	Name  string
	Descr string
	PTC   int
	PFC   int
	Width int
	Curtx string
	Categ string
	Unit  string
}

func (b *Builder) addPCF(p Param) {
	b.t.Helper()
	b.exec(`INSERT OR IGNORE INTO PCF (PCF_NAME, PCF_DESCR, PCF_PTC, PCF_PFC, PCF_WIDTH, PCF_CURTX, PCF_CATEG, PCF_UNIT)
	        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Descr, p.PTC, p.PFC, p.Width, nullable(p.Curtx), nullable(p.Categ), nullable(p.Unit))
}

// AddStaticParam places a field at an absolute byte+bit offset of a static
// packet.
func (b *Builder) AddStaticParam(spid int64, byteOffset, bitOffset int, p Param) {
	b.t.Helper()
	b.addPCF(p)
	b.exec(`INSERT INTO PLF (PLF_NAME, PLF_SPID, PLF_OFFBY, PLF_OFFBI) VALUES (?, ?, ?, ?)`,
		p.Name, spid, byteOffset, bitOffset)
}

// AddVariableParam appends a field at an ordinal position of a variable
// packet. groupSize > 0 opens a repeat group spanning that many following
// fields; offset is the signed bit shift relative to the previous field.
func (b *Builder) AddVariableParam(tpsd int64, pos, groupSize, offset int, p Param) {
	b.t.Helper()
	b.addPCF(p)
	b.exec(`INSERT INTO VPD (VPD_TPSD, VPD_POS, VPD_NAME, VPD_GRPSIZE, VPD_FIXREP, VPD_OFFSET)
	        VALUES (?, ?, ?, ?, 0, ?)`,
		tpsd, pos, p.Name, groupSize, offset)
}

// AddPolynomial stores the five coefficient columns of one polynomial
// calibration. Coefficients are stored textually; pass e.g. "1.5".
func (b *Builder) AddPolynomial(ident string, coeffs [5]string) {
	b.t.Helper()
	b.exec(`INSERT INTO MCF (MCF_IDENT, MCF_DESCR, MCF_POL1, MCF_POL2, MCF_POL3, MCF_POL4, MCF_POL5)
	        VALUES (?, '', ?, ?, ?, ?, ?)`,
		ident, coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4])
}

// AddCurvePoint appends one (x, y) support point to a curve calibration.
func (b *Builder) AddCurvePoint(ident, x, y string) {
	b.t.Helper()
	b.exec(`INSERT INTO CAP (CAP_NUMBR, CAP_XVALS, CAP_YVALS) VALUES (?, ?, ?)`, ident, x, y)
}

// AddTextual maps the closed raw range [from, to] to an enumeration label.
func (b *Builder) AddTextual(ident string, from, to int64, label string) {
	b.t.Helper()
	b.exec(`INSERT INTO TXP (TXP_NUMBR, TXP_FROM, TXP_TO, TXP_ALTXT) VALUES (?, ?, ?, ?)`,
		ident, from, to, label)
}

// Build closes the write connection and returns the finished file's path.
// The builder must not be used afterwards.
func (b *Builder) Build() string {
	b.t.Helper()
	if err := b.db.Close(); err != nil {
		b.t.Fatalf("close fixture db: %v", err)
	}
	return b.path
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
