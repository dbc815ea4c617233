package tmtc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i4Ds/STIXCore-sub001/internal/scet"
)

// encodeTM assembles a complete telemetry packet around an application
// payload.
func encodeTM(t *testing.T, serviceType, serviceSubtype uint8, at scet.SCET, payload []byte) []byte {
	t.Helper()
	dataField := DataHeaderLen + len(payload)
	buf := make([]byte, SourceHeaderLen+dataField)

	// Version 0 telemetry with a data field header, APID 1443,
	// standalone segmentation.
	binary.BigEndian.PutUint16(buf[0:2], 0x0800|1443)
	binary.BigEndian.PutUint16(buf[2:4], 0xC000|42)
	binary.BigEndian.PutUint16(buf[4:6], uint16(dataField-1))

	buf[6] = 0x10 // PUS version 1
	buf[7] = serviceType
	buf[8] = serviceSubtype
	buf[9] = 0
	binary.BigEndian.PutUint32(buf[10:14], at.Coarse)
	binary.BigEndian.PutUint16(buf[14:16], at.Fine)
	copy(buf[HeaderLen:], payload)
	return buf
}

func TestDecodeSourceHeader(t *testing.T) {
	raw := encodeTM(t, 21, 6, scet.SCET{Coarse: 100}, []byte{0xAA})
	hdr, err := DecodeSourceHeader(raw)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), hdr.Version)
	assert.Equal(t, uint8(0), hdr.PacketType)
	assert.True(t, hdr.HasDataHeader)
	assert.Equal(t, uint16(1443), hdr.APID)
	assert.Equal(t, uint8(3), hdr.Segmentation)
	assert.Equal(t, uint16(42), hdr.SequenceCount)
	assert.Equal(t, len(raw), hdr.TotalLength())
}

func TestDecodeSourceHeaderShort(t *testing.T) {
	_, err := DecodeSourceHeader([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodeDataHeader(t *testing.T) {
	raw := encodeTM(t, 21, 6, scet.SCET{Coarse: 661111085, Fine: 4660}, nil)
	dh, err := DecodeDataHeader(raw[SourceHeaderLen:])
	require.NoError(t, err)

	assert.Equal(t, uint8(1), dh.PUSVersion)
	assert.Equal(t, uint8(21), dh.ServiceType)
	assert.Equal(t, uint8(6), dh.ServiceSubtype)
	assert.Equal(t, scet.SCET{Coarse: 661111085, Fine: 4660}, dh.Timestamp)
}

func TestDecodeDataHeaderShort(t *testing.T) {
	_, err := DecodeDataHeader(make([]byte, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodePacket(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	raw := encodeTM(t, 3, 25, scet.SCET{Coarse: 7}, payload)

	p, err := DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, p.Data)
	assert.Equal(t, raw, p.Raw)
	assert.Equal(t, uint8(3), p.DataHeader.ServiceType)
	assert.Equal(t, uint8(25), p.DataHeader.ServiceSubtype)
}

func TestDecodePacketTruncated(t *testing.T) {
	raw := encodeTM(t, 3, 25, scet.SCET{}, []byte{1, 2, 3, 4})
	_, err := DecodePacket(raw[:len(raw)-2])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestReadPackets(t *testing.T) {
	one := encodeTM(t, 21, 6, scet.SCET{Coarse: 1}, []byte{0x01})
	two := encodeTM(t, 3, 25, scet.SCET{Coarse: 2}, []byte{0x02, 0x03})

	var seen []*Packet
	err := ReadPackets(bytes.NewReader(append(append([]byte{}, one...), two...)), func(p *Packet) error {
		seen = append(seen, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, one, seen[0].Raw)
	assert.Equal(t, two, seen[1].Raw)
	// Packets keep their own buffers.
	assert.NotSame(t, &seen[0].Raw[0], &seen[1].Raw[0])
}

func TestReadPacketsTruncatedStream(t *testing.T) {
	one := encodeTM(t, 21, 6, scet.SCET{}, []byte{0x01, 0x02})

	err := ReadPackets(bytes.NewReader(one[:len(one)-1]), func(p *Packet) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	// A stray partial header at the end is also an error.
	err = ReadPackets(bytes.NewReader(append(append([]byte{}, one...), 0x00, 0x01)), func(p *Packet) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestReadPacketsCallbackError(t *testing.T) {
	one := encodeTM(t, 21, 6, scet.SCET{}, []byte{0x01})
	boom := errors.New("boom")
	err := ReadPackets(bytes.NewReader(one), func(p *Packet) error { return boom })
	assert.True(t, errors.Is(err, boom))
}

func TestDigest(t *testing.T) {
	a, err := DecodePacket(encodeTM(t, 21, 6, scet.SCET{Coarse: 1}, []byte{0x01}))
	require.NoError(t, err)
	b, err := DecodePacket(encodeTM(t, 21, 6, scet.SCET{Coarse: 1}, []byte{0x01}))
	require.NoError(t, err)
	c, err := DecodePacket(encodeTM(t, 21, 6, scet.SCET{Coarse: 1}, []byte{0x02}))
	require.NoError(t, err)

	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
}
