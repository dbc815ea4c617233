package tmtc

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/midbel/xxh"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/scet"
)

const (
	// SourceHeaderLen is the size of the CCSDS source packet header.
	SourceHeaderLen = 6
	// DataHeaderLen is the size of the PUS data field header.
	DataHeaderLen = 10
	// HeaderLen is the combined header size in front of the application
	// data of a telemetry packet.
	HeaderLen = SourceHeaderLen + DataHeaderLen
	// maxDataFieldLen bounds one packet's data field; the 16-bit length
	// field stores length-1.
	maxDataFieldLen = 1 << 16
)

// SourcePacketHeader is the 6-byte CCSDS primary header.
type SourcePacketHeader struct {
	Version       uint8
	PacketType    uint8 // 0 telemetry, 1 telecommand
	HasDataHeader bool
	APID          uint16
	Segmentation  uint8
	SequenceCount uint16
	DataLength    uint16 // data field length minus one
}

// TotalLength returns the full packet size described by the header.
func (h SourcePacketHeader) TotalLength() int {
	return SourceHeaderLen + int(h.DataLength) + 1
}

// DecodeSourceHeader reads the primary header from the front of b.
func DecodeSourceHeader(b []byte) (SourcePacketHeader, error) {
	if len(b) < SourceHeaderLen {
		return SourcePacketHeader{}, errors.Wrapf(ErrDecode,
			"source header needs %d bytes, have %d", SourceHeaderLen, len(b))
	}
	word := binary.BigEndian.Uint16(b[0:2])
	seq := binary.BigEndian.Uint16(b[2:4])
	return SourcePacketHeader{
		Version:       uint8(word >> 13),
		PacketType:    uint8(word >> 12 & 0x1),
		HasDataHeader: word>>11&0x1 == 1,
		APID:          word & 0x7FF,
		Segmentation:  uint8(seq >> 14),
		SequenceCount: seq & 0x3FFF,
		DataLength:    binary.BigEndian.Uint16(b[4:6]),
	}, nil
}

// DataHeader is the 10-byte PUS data field header of a telemetry packet.
type DataHeader struct {
	PUSVersion     uint8
	ServiceType    uint8
	ServiceSubtype uint8
	DestinationID  uint8
	Timestamp      scet.SCET
}

// DecodeDataHeader reads the data field header from the front of b.
func DecodeDataHeader(b []byte) (DataHeader, error) {
	if len(b) < DataHeaderLen {
		return DataHeader{}, errors.Wrapf(ErrDecode,
			"data header needs %d bytes, have %d", DataHeaderLen, len(b))
	}
	return DataHeader{
		PUSVersion:     b[0] >> 4 & 0x7,
		ServiceType:    b[1],
		ServiceSubtype: b[2],
		DestinationID:  b[3],
		Timestamp: scet.SCET{
			Coarse: binary.BigEndian.Uint32(b[4:8]),
			Fine:   binary.BigEndian.Uint16(b[8:10]),
		},
	}, nil
}

// Packet is one decoded telemetry source packet.
type Packet struct {
	SourceHeader SourcePacketHeader
	DataHeader   DataHeader
	// Data is the application payload after both headers; the parser's
	// bit cursor starts at its first bit.
	Data []byte
	// Raw holds the complete packet including headers.
	Raw []byte
}

// DecodePacket splits one packet off the front of b. The input must hold
// the complete packet announced by the length field.
func DecodePacket(b []byte) (*Packet, error) {
	hdr, err := DecodeSourceHeader(b)
	if err != nil {
		return nil, err
	}
	total := hdr.TotalLength()
	if len(b) < total {
		return nil, errors.Wrapf(ErrDecode,
			"packet announces %d bytes, have %d", total, len(b))
	}
	p := &Packet{SourceHeader: hdr, Raw: b[:total]}
	if hdr.HasDataHeader {
		dh, err := DecodeDataHeader(b[SourceHeaderLen:total])
		if err != nil {
			return nil, err
		}
		p.DataHeader = dh
		p.Data = b[HeaderLen:total]
	} else {
		p.Data = b[SourceHeaderLen:total]
	}
	return p, nil
}

// Digest returns a 64-bit content hash of the raw packet bytes, used for
// duplicate detection across overlapping telemetry deliveries.
func (p *Packet) Digest() uint64 {
	d := xxh.New64(0)
	d.Write(p.Raw)
	return binary.BigEndian.Uint64(d.Sum(nil))
}

// ReadPackets walks a stream of back-to-back source packets, calling fn for
// each. Every packet gets its own buffer, so fn may retain it. A truncated
// final packet is an error naming the byte position; a callback error stops
// the walk.
func ReadPackets(r io.Reader, fn func(*Packet) error) error {
	pos := 0
	header := make([]byte, SourceHeaderLen)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return errors.Wrapf(ErrDecode, "stream ends inside a packet header at byte %d", pos)
			}
			return err
		}
		hdr, err := DecodeSourceHeader(header)
		if err != nil {
			return err
		}

		buf := make([]byte, hdr.TotalLength())
		copy(buf, header)
		if _, err := io.ReadFull(r, buf[SourceHeaderLen:]); err != nil {
			return errors.Wrapf(ErrDecode,
				"stream ends inside a %d byte packet at byte %d", hdr.TotalLength(), pos)
		}
		p, err := DecodePacket(buf)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		pos += hdr.TotalLength()
	}
}

// Identify resolves the packet's type identity against a catalog, reading
// the discriminant from the raw bytes when the packet family declares one.
// ok is false for packet types the catalog does not know.
func Identify(p *Packet, cat *idb.IDB) (idb.PacketTypeInfo, bool, error) {
	st := int(p.DataHeader.ServiceType)
	sst := int(p.DataHeader.ServiceSubtype)

	pi1 := idb.NoDiscriminant
	pos, hasPI1, err := cat.PI1Position(st, sst)
	if err != nil {
		return idb.PacketTypeInfo{}, false, err
	}
	if hasPI1 {
		r := NewReader(p.Raw)
		if err := r.Seek(pos.ByteOffset * 8); err != nil {
			return idb.PacketTypeInfo{}, false, err
		}
		v, err := r.ReadUnsigned(pos.BitWidth)
		if err != nil {
			return idb.PacketTypeInfo{}, false, err
		}
		pi1 = int(v)
	}
	return cat.PacketTypeInfo(st, sst, pi1)
}
