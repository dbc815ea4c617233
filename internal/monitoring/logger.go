// Package monitoring holds the process-wide diagnostic logging hook shared by
// the decoding packages. Catalog lookups and the packet parser report soft
// conditions (unknown packet types, missing calibrations, suspicious repeat
// counts) through Logf rather than returning errors, so this hook is the one
// place a host process mutes or redirects that stream.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be swapped with SetLogger, typically to mute it in tests or to route it
// into a pipeline's own logging.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
