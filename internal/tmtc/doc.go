// Package tmtc decodes telemetry source packets.
//
// Responsibilities: packet framing over a byte stream, source and data
// header decoding, the MSB-first bit reader, the structure-driven payload
// parser, and the post-parse parameter merger that turns repeat groups into
// array-valued fields.
// Key types: Packet, Reader, Parameter, Record.
//
// The parser consumes layout trees from the idb package but never mutates
// them; runtime repeat counts are kept in parse-local state so one tree can
// serve concurrent parses.
package tmtc
