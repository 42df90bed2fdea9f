// Package sdp encodes the Hands-Free service SDP record (spec §6.2) as
// a byte-level SDP data-element-sequence, the minimal encoder this
// profile needs: it only ever emits this one attribute set, never
// parses a remote one (general SDP client behavior is out of scope,
// spec §1 "only their interfaces are specified in §6").
package sdp

import "encoding/binary"

// Standard Bluetooth SIG attribute IDs used by the Hands-Free record
// (spec §6.2).
const (
	attrServiceClassIDList             = 0x0001
	attrProtocolDescriptorList         = 0x0004
	attrBrowseGroupList                = 0x0005
	attrBluetoothProfileDescriptorList = 0x0009
	attrSupportedFeatures              = 0x0311

	uuidHandsfreeService  = 0x111e
	uuidGenericAudio      = 0x1203
	uuidL2CAP             = 0x0100
	uuidRFCOMM            = 0x0003
	uuidHandsfreeProfile  = 0x111e
	uuidPublicBrowseGroup = 0x1002
)

// element kinds for the data-element-sequence byte encoding (SDP
// transport §2.1 of the Bluetooth core spec: type/size descriptor byte
// followed by the value).
const (
	deUint8  = 0x08
	deUint16 = 0x09
	deUUID16 = 0x19
	deSeq8   = 0x35
)

type encoder struct {
	buf []byte
}

func (e *encoder) uint8(v uint8) {
	e.buf = append(e.buf, deUint8, v)
}

func (e *encoder) uint16(v uint16) {
	e.buf = append(e.buf, deUint16, byte(v>>8), byte(v))
}

func (e *encoder) uuid16(v uint16) {
	e.buf = append(e.buf, deUUID16, byte(v>>8), byte(v))
}

// seq appends a nested data-element-sequence, length-prefixed as a
// single byte (every sequence this record needs fits under 256 bytes).
func (e *encoder) seq(build func(*encoder)) {
	inner := &encoder{}
	build(inner)
	e.buf = append(e.buf, deSeq8, byte(len(inner.buf)))
	e.buf = append(e.buf, inner.buf...)
}

// HandsFreeRecord encodes the attribute set of spec §6.2 for the
// Hands-Free role, with localFeatures embedded as SupportedFeatures.
// The RFCOMM channel is encoded as 0 and left for BlueZ to fill in.
func HandsFreeRecord(localFeatures uint32) []byte {
	e := &encoder{}

	e.seq(func(e *encoder) { // top-level ServiceAttribute list, keyed by attribute ID
		e.uint16(attrServiceClassIDList)
		e.seq(func(e *encoder) {
			e.uuid16(uuidHandsfreeService)
			e.uuid16(uuidGenericAudio)
		})

		e.uint16(attrBrowseGroupList)
		e.seq(func(e *encoder) {
			e.uuid16(uuidPublicBrowseGroup)
		})

		e.uint16(attrProtocolDescriptorList)
		e.seq(func(e *encoder) {
			e.seq(func(e *encoder) { e.uuid16(uuidL2CAP) })
			e.seq(func(e *encoder) {
				e.uuid16(uuidRFCOMM)
				e.uint8(0) // RFCOMM channel is filled in by BlueZ at registration time
			})
		})

		e.uint16(attrBluetoothProfileDescriptorList)
		e.seq(func(e *encoder) {
			e.seq(func(e *encoder) {
				e.uuid16(uuidHandsfreeProfile)
				e.uint16(0x0105) // HFP v1.5
			})
		})

		e.uint16(attrSupportedFeatures)
		e.uint16(uint16(localFeatures))
	})

	return e.buf
}

// FeaturesFromRecord extracts the SupportedFeatures attribute from a
// record produced by HandsFreeRecord; records from other encoders are
// not guaranteed to be understood.
func FeaturesFromRecord(record []byte) (uint32, bool) {
	idx := findAttribute(record, attrSupportedFeatures)
	if idx < 0 || idx+2 >= len(record) || record[idx] != deUint16 {
		return 0, false
	}
	return uint32(binary.BigEndian.Uint16(record[idx+1 : idx+3])), true
}

// findAttribute does a byte-level scan for a 16-bit attribute ID
// followed by its value element, returning the index of the value's
// type byte. This is intentionally not a full DES parser: the encoder
// above is the only producer this package needs to read back.
func findAttribute(record []byte, attrID uint16) int {
	want := []byte{deUint16, byte(attrID >> 8), byte(attrID)}
	for i := 0; i+len(want) < len(record); i++ {
		match := true
		for j, b := range want {
			if record[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return i + len(want)
		}
	}
	return -1
}
