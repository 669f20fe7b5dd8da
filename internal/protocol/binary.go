package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Binary framing shared by ET300, GT06 and WeTrack:
//
//	78 78 LEN OP PAYLOAD SERIAL(2) CRC(2) 0D 0A        short frame
//	79 79 LEN(2) OP PAYLOAD SERIAL(2) CRC(2) 0D 0A     long frame (GT06)
//
// LEN counts everything from the opcode through the CRC. The CRC covers
// the length field through the serial number.

// Opcodes of the GT06 family.
const (
	opLogin    = 0x01
	opLocation = 0x12
	opStatus   = 0x13
	opString   = 0x15
	opAlarm    = 0x16
	opAddress  = 0x1A
	opCommand  = 0x80
	opAnalog   = 0x94
)

type binaryFrame struct {
	start   string // "7878" or "7979"
	opcode  byte
	payload []byte
	serial  uint16
	crc     uint16
}

// parseBinaryFrame validates markers, declared length and checksum, and
// splits one short or long frame into its parts.
func parseBinaryFrame(buf []byte) (*binaryFrame, error) {
	if len(buf) < 10 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a frame", ErrMalformed, len(buf))
	}
	if buf[len(buf)-2] != 0x0D || buf[len(buf)-1] != 0x0A {
		return nil, fmt.Errorf("%w: bad stop marker %02x%02x", ErrMalformed, buf[len(buf)-2], buf[len(buf)-1])
	}

	f := &binaryFrame{}
	var declared, headerLen int
	switch {
	case buf[0] == 0x78 && buf[1] == 0x78:
		f.start = "7878"
		declared = int(buf[2])
		headerLen = 3
	case buf[0] == 0x79 && buf[1] == 0x79:
		f.start = "7979"
		declared = int(binary.BigEndian.Uint16(buf[2:4]))
		headerLen = 4
	default:
		return nil, fmt.Errorf("%w: bad start marker %02x%02x", ErrMalformed, buf[0], buf[1])
	}

	// Declared length counts opcode through CRC.
	if declared != len(buf)-headerLen-2 {
		return nil, fmt.Errorf("%w: declared length %d does not match %d frame bytes", ErrMalformed, declared, len(buf))
	}
	if len(buf) < headerLen+7 {
		return nil, fmt.Errorf("%w: frame too short for opcode and trailer", ErrMalformed)
	}

	f.opcode = buf[headerLen]
	f.payload = buf[headerLen+1 : len(buf)-6]
	f.serial = binary.BigEndian.Uint16(buf[len(buf)-6 : len(buf)-4])
	f.crc = binary.BigEndian.Uint16(buf[len(buf)-4 : len(buf)-2])

	if want := Checksum(buf[2 : len(buf)-4]); want != f.crc {
		return nil, fmt.Errorf("%w: checksum %04x, frame carries %04x", ErrMalformed, want, f.crc)
	}
	return f, nil
}

// imeiFromLoginPayload recovers the IMEI from a binary login payload.
// The 15 digits are packed into 8 bytes with a leading zero nibble; the
// IMEI is the hex expansion with that first nibble dropped.
func imeiFromLoginPayload(payload []byte) string {
	h := hex.EncodeToString(payload)
	if len(h) < 2 {
		return ""
	}
	return h[1:]
}

// latlngDegrees converts the raw big-endian coordinate to decimal
// degrees: the device reports 1/30000 minute units.
func latlngDegrees(raw uint32) float64 {
	return (float64(raw) / 30000) / 60
}

// Course word bits, numbered MSB-first as in the protocol documents.
const (
	courseDifferential = 0x2000 // bit 2
	coursePositioned   = 0x1000 // bit 3
	courseSouth        = 0x0800 // bit 4
	courseWest         = 0x0400 // bit 5: longitude is WEST when this bit is 0
	courseMask         = 0x03FF // bits 6..15
)

// decodeBinaryFix decodes the 18-byte location block common to the
// GT06 family: date-time, satellites, coordinates, speed and the packed
// course word.
func decodeBinaryFix(p []byte) (*Fix, error) {
	if len(p) < 18 {
		return nil, fmt.Errorf("%w: location payload %d bytes, want at least 18", ErrMalformed, len(p))
	}

	fix := &Fix{
		DeviceTime: fmt.Sprintf("20%02d-%02d-%02d %02d:%02d:%02d", p[0], p[1], p[2], p[3], p[4], p[5]),
		Satellites: int(p[6] & 0x0F),
		Lat:        latlngDegrees(binary.BigEndian.Uint32(p[7:11])),
		Lng:        latlngDegrees(binary.BigEndian.Uint32(p[11:15])),
		Speed:      float64(p[15]),
	}

	course := binary.BigEndian.Uint16(p[16:18])
	fix.Accuracy = "real-time"
	if course&courseDifferential != 0 {
		fix.Accuracy = "differential positioning"
	}
	fix.Tracking = course&coursePositioned != 0
	if course&courseSouth != 0 {
		fix.Lat = -fix.Lat
	}
	// Bit 5 clear means west. Inverted relative to the vendor document,
	// but this is what the devices actually send.
	if course&courseWest == 0 {
		fix.Lng = -fix.Lng
	}
	fix.Course = float64(course & courseMask)
	return fix, nil
}

// terminalLayout selects between the two terminal-info bit layouts used
// by the family: ET300/WeTrack put the alarm trigram at bits 2..4,
// GT06 shifts everything down one and repurposes the edges.
type terminalLayout int

const (
	layoutET300 terminalLayout = iota
	layoutGT06
)

// decodeTerminalStatus decodes a status payload (or the status bytes
// appended to an alarm frame): terminal-info bit flags, voltage level,
// GSM signal, alarm code and language.
func decodeTerminalStatus(p []byte, layout terminalLayout) (*Status, string, error) {
	if len(p) < 5 {
		return nil, "", fmt.Errorf("%w: status payload %d bytes, want at least 5", ErrMalformed, len(p))
	}

	s := &Status{
		VoltageLevel:      int(p[1]),
		GSMSignalStrength: int(p[2]),
		Events:            map[string]any{},
	}
	var code string

	// Bits of p[0], numbered MSB-first.
	bit := func(i int) bool { return p[0]>>(7-i)&1 == 1 }

	switch layout {
	case layoutET300:
		engine := !bit(0)
		s.Engine = &engine
		s.Tracking = bit(1)
		code = trigramEvent(p[0]>>3&0x07, s.Events)
		s.Charge = bit(5)
		s.Ignition = bit(6)
		activated := bit(7)
		s.Activated = &activated

		switch p[3] {
		case 0x01:
			s.Events["sos"] = true
		case 0x02:
			s.Events["power_cut"] = true
		case 0x03:
			s.Events["shock"] = true
		case 0x04:
			s.Events["fence_in"] = true
		case 0x05:
			s.Events["fence_out"] = true
		}

	case layoutGT06:
		s.Ignition = bit(1)
		s.Charge = bit(2)
		code = trigramEvent(p[0]>>2&0x07, s.Events)
		s.Tracking = bit(6)
		if bit(7) {
			s.Events["immobilizer"] = true
			code = EventEngineCut
		}
	}

	switch p[4] {
	case 0x01:
		s.Language = "Chinese"
	case 0x02:
		s.Language = "English"
	}
	return s, code, nil
}

// alarmStatusBytes slices the status block an alarm frame appends
// after its location and LBS blocks.
func alarmStatusBytes(payload []byte, offset int) ([]byte, error) {
	if len(payload) < offset+5 {
		return nil, fmt.Errorf("%w: alarm payload %d bytes, status block starts at %d", ErrMalformed, len(payload), offset)
	}
	return payload[offset:], nil
}

// trigramEvent maps the three-bit alarm field to its canonical event,
// recording the matching flag in events. Returns "" for no alarm.
func trigramEvent(trigram byte, events map[string]any) string {
	switch trigram {
	case 0b100:
		events["sos"] = true
		return EventSOS
	case 0b011:
		events["low_battery"] = true
		return EventLowBattery
	case 0b010:
		events["power_cut"] = true
		return EventTempered
	case 0b001:
		events["shock"] = true
		return EventShock
	}
	return ""
}
