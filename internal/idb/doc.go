// Package idb answers structural and calibration questions about one fixed
// version of the instrument definition database, and resolves which version
// applies at a given onboard time.
//
// Responsibilities: packet identity lookup, parameter structure lookup
// (static and variable with nested repeat groups), calibration definitions
// (polynomial, curve, textual), and the version registry built from the
// release manifest.
// Key types: IDB, StructureNode, ParameterInfo, Manager.
//
// An IDB handle is read-mostly: the underlying SQLite file is never written,
// and mutation is confined to lazy cache population, which is mutex-guarded
// so a handle may be shared across goroutines. Structure trees handed out by
// the catalog are shared and must never be mutated by callers; the packet
// parser keeps its runtime repeat counts in per-parse state.
package idb
