package idb

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/i4Ds/STIXCore-sub001/internal/calibration"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

// ErrNotConnected marks catalog access before Open or after Close. It is
// fatal for the current unit of work, unlike a lookup that merely finds no
// rows.
var ErrNotConnected = errors.New("idb: not connected")

type identKey struct {
	serviceType    int
	serviceSubtype int
	pi1            int
}

type structKey struct {
	ident    identKey
	variable bool
}

type textualKey struct {
	curtx string
	raw   int64
}

type calibFilterKey struct {
	ident       identKey
	nameFilter  string
	curtxFilter string
}

// numericCalibration is one entry of the numeric-calibration cache; depending
// on the reference id it holds a polynomial or a curve.
type numericCalibration struct {
	poly  *calibration.Polynomial
	curve *calibration.Curve
}

// IDB is an open catalog for one database version. The five lookup caches
// are populated lazily under mu; the SQLite file itself is only ever read.
type IDB struct {
	path string

	mu      sync.Mutex
	db      *sql.DB
	version string

	typeInfo   map[identKey]PacketTypeInfo
	pi1        map[[2]int]PI1Position
	structures map[structKey]*StructureNode
	calibLists map[calibFilterKey][]*ParameterInfo
	textual    map[textualKey]any
	numeric    map[string]numericCalibration
}

// Open opens the catalog file read-only and reads its version label.
func Open(path string) (*IDB, error) {
	c := &IDB{
		path:       path,
		typeInfo:   make(map[identKey]PacketTypeInfo),
		pi1:        make(map[[2]int]PI1Position),
		structures: make(map[structKey]*StructureNode),
		calibLists: make(map[calibFilterKey][]*ParameterInfo),
		textual:    make(map[textualKey]any),
		numeric:    make(map[string]numericCalibration),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *IDB) connect() error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", c.path))
	if err != nil {
		return errors.Wrapf(err, "idb: open %s", c.path)
	}
	var version string
	if err := db.QueryRow(`SELECT IDB_VERSION FROM IDB LIMIT 1`).Scan(&version); err != nil {
		db.Close()
		return errors.Wrapf(err, "idb: read version from %s", c.path)
	}
	c.db = db
	c.version = version
	return nil
}

// Reopen reconnects a closed catalog. Caches survive a close since the row
// data they were built from is immutable.
func (c *IDB) Reopen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	return c.connect()
}

// Version returns the catalog's version label.
func (c *IDB) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// IsOpen reports whether the catalog can currently serve lookups.
func (c *IDB) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Close releases the underlying connection. The handle stays reusable via
// Reopen.
func (c *IDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return errors.Wrapf(err, "idb: close %s", c.path)
	}
	return nil
}

// conn returns the live handle or ErrNotConnected. Callers must hold mu.
func (c *IDB) conn() (*sql.DB, error) {
	if c.db == nil {
		return nil, errors.Wrapf(ErrNotConnected, "catalog %s", c.path)
	}
	return c.db, nil
}

// PacketTypeInfo looks up the identity record for (serviceType,
// serviceSubtype, pi1). Pass NoDiscriminant for packet types without a
// discriminant. A missing row is a soft miss: ok is false and a warning is
// logged, no error is returned.
func (c *IDB) PacketTypeInfo(serviceType, serviceSubtype, pi1 int) (PacketTypeInfo, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packetTypeInfoLocked(identKey{serviceType, serviceSubtype, pi1})
}

func (c *IDB) packetTypeInfoLocked(key identKey) (PacketTypeInfo, bool, error) {
	if info, ok := c.typeInfo[key]; ok {
		return info, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return PacketTypeInfo{}, false, err
	}

	info := PacketTypeInfo{ServiceType: key.serviceType, ServiceSubtype: key.serviceSubtype, PI1: key.pi1}
	row := db.QueryRow(`
		SELECT PID_SPID, PID_TPSD, PID_DESCR
		FROM PID
		WHERE PID_TYPE = ? AND PID_STYPE = ? AND PID_PI1_VAL = ?`,
		key.serviceType, key.serviceSubtype, key.pi1)
	switch err := row.Scan(&info.SPID, &info.TPSD, &info.Description); {
	case errors.Is(err, sql.ErrNoRows):
		monitoring.Logf("WARN: idb %s: no packet type info for (%d, %d, %d)",
			c.version, key.serviceType, key.serviceSubtype, key.pi1)
		return PacketTypeInfo{}, false, nil
	case err != nil:
		return PacketTypeInfo{}, false, errors.Wrapf(err, "idb: packet type info (%d, %d, %d)",
			key.serviceType, key.serviceSubtype, key.pi1)
	}
	c.typeInfo[key] = info
	return info, true, nil
}

// PI1Position reports where the discriminant of a (serviceType,
// serviceSubtype) family lives in the raw packet. ok is false when the
// family declares no discriminant.
func (c *IDB) PI1Position(serviceType, serviceSubtype int) (PI1Position, bool, error) {
	key := [2]int{serviceType, serviceSubtype}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pos, ok := c.pi1[key]; ok {
		return pos, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return PI1Position{}, false, err
	}

	var pos PI1Position
	row := db.QueryRow(`
		SELECT PIC_PI1_OFF, PIC_PI1_WID
		FROM PIC
		WHERE PIC_TYPE = ? AND PIC_STYPE = ?`,
		serviceType, serviceSubtype)
	switch err := row.Scan(&pos.ByteOffset, &pos.BitWidth); {
	case errors.Is(err, sql.ErrNoRows):
		monitoring.Logf("WARN: idb %s: no PI1 position for (%d, %d)",
			c.version, serviceType, serviceSubtype)
		return PI1Position{}, false, nil
	case err != nil:
		return PI1Position{}, false, errors.Wrapf(err, "idb: PI1 position (%d, %d)",
			serviceType, serviceSubtype)
	}
	if pos.ByteOffset < 0 {
		return PI1Position{}, false, nil
	}
	c.pi1[key] = pos
	return pos, true, nil
}
