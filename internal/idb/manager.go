package idb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
	"github.com/i4Ds/STIXCore-sub001/internal/scet"
	"github.com/i4Ds/STIXCore-sub001/internal/security"
)

// ErrVersionNotFound marks resolution failures: no manifest interval covers
// the requested onboard time, or a requested version has no local data. The
// wrapped message names the time or path that was attempted.
var ErrVersionNotFound = errors.New("idb: version not found")

// ManifestName is the file inside the IDB root listing released versions
// and their onboard-time validity.
const ManifestName = "idbVersionHistory.json"

// DatabaseName is the catalog file inside each version directory.
const DatabaseName = "idb.sqlite"

// VersionInterval maps one half-open onboard time range [Start, End) to a
// version label. Intervals are non-overlapping by construction of the
// release manifest; overlaps are a configuration error and are not detected
// here.
type VersionInterval struct {
	Version string
	Start   scet.SCET
	End     scet.SCET
}

// Covers reports whether t falls inside the interval.
func (iv VersionInterval) Covers(t scet.SCET) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Manager resolves onboard times to IDB versions and owns one lazily opened
// catalog handle per version.
type Manager struct {
	root      string
	intervals []VersionInterval

	mu     sync.Mutex
	forced string
	open   map[string]*IDB
}

type manifestTime struct {
	Coarse uint32 `json:"coarse"`
	Fine   uint16 `json:"fine"`
}

type manifestEntry struct {
	Version        string         `json:"version"`
	ValidityPeriod []manifestTime `json:"validityPeriodOBT"`
}

// NewManager reads the release manifest under root and builds the
// interval-to-version registry.
func NewManager(root string) (*Manager, error) {
	path := filepath.Join(root, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "idb: read manifest %s", path)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "idb: parse manifest %s", path)
	}

	m := &Manager{root: root, open: make(map[string]*IDB)}
	for _, e := range entries {
		if e.Version == "" || len(e.ValidityPeriod) != 2 {
			return nil, errors.Newf("idb: manifest %s: entry %q needs a version and a 2-point validityPeriodOBT",
				path, e.Version)
		}
		m.intervals = append(m.intervals, VersionInterval{
			Version: e.Version,
			Start:   scet.SCET{Coarse: e.ValidityPeriod[0].Coarse, Fine: e.ValidityPeriod[0].Fine},
			End:     scet.SCET{Coarse: e.ValidityPeriod[1].Coarse, Fine: e.ValidityPeriod[1].Fine},
		})
	}
	sort.Slice(m.intervals, func(i, j int) bool {
		return m.intervals[i].Start.Before(m.intervals[j].Start)
	})
	return m, nil
}

// Root returns the directory the manager resolves version data under.
func (m *Manager) Root() string { return m.root }

// Intervals returns the validity registry in ascending start order.
func (m *Manager) Intervals() []VersionInterval { return m.intervals }

// Available lists the distinct version labels of the registry in first-use
// order.
func (m *Manager) Available() []string {
	var out []string
	seen := make(map[string]bool)
	for _, iv := range m.intervals {
		if !seen[iv.Version] {
			seen[iv.Version] = true
			out = append(out, iv.Version)
		}
	}
	return out
}

// HasVersion reports whether the registry names the version.
func (m *Manager) HasVersion(version string) bool {
	for _, iv := range m.intervals {
		if iv.Version == version {
			return true
		}
	}
	return false
}

// ForceVersion pins every subsequent resolution to one version regardless of
// onboard time. An empty label lifts the pin.
func (m *Manager) ForceVersion(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = version
	if version != "" {
		monitoring.Logf("idb: version resolution forced to %s", version)
	}
}

// FindVersion resolves the version in effect at onboard time t.
func (m *Manager) FindVersion(t scet.SCET) (string, error) {
	m.mu.Lock()
	forced := m.forced
	m.mu.Unlock()
	if forced != "" {
		return forced, nil
	}
	for _, iv := range m.intervals {
		if iv.Covers(t) {
			return iv.Version, nil
		}
	}
	return "", errors.Wrapf(ErrVersionNotFound, "no validity interval covers onboard time %s", t)
}

// FindVersionOrDefault resolves the version at t, falling back to the given
// label when no interval covers it. The fallback is logged, never silent.
func (m *Manager) FindVersionOrDefault(t scet.SCET, fallback string) string {
	v, err := m.FindVersion(t)
	if err != nil {
		monitoring.Logf("WARN: idb: %v, falling back to version %s", err, fallback)
		return fallback
	}
	return v
}

// IDB returns the open catalog for a version, opening
// <root>/<version>/idb.sqlite on first use.
func (m *Manager) IDB(version string) (*IDB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.open[version]; ok {
		return c, nil
	}
	path := filepath.Join(m.root, version, DatabaseName)
	if err := security.ValidatePathWithinDirectory(path, m.root); err != nil {
		return nil, errors.Wrapf(ErrVersionNotFound, "version %s: %v", version, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrVersionNotFound, "version %s has no local data at %s", version, path)
	}
	c, err := Open(path)
	if err != nil {
		return nil, err
	}
	m.open[version] = c
	return c, nil
}

// IDBForTime resolves the version at t and returns its catalog.
func (m *Manager) IDBForTime(t scet.SCET) (*IDB, error) {
	version, err := m.FindVersion(t)
	if err != nil {
		return nil, err
	}
	return m.IDB(version)
}

// Close closes every catalog the manager opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for version, c := range m.open {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.open, version)
	}
	return first
}
