package protocol

import (
	"encoding/binary"
	"fmt"
)

// WeTrack speaks the short GT06 framing on port 5004. Unlike GT06 it
// gets a properly recomputed response for login and status frames:
//
//	78 78 05 OP SERIAL CRC 0D 0A
type WeTrack struct{}

// wetrackResponse builds the per-frame server response with a fresh
// CRC over length + opcode + serial.
func wetrackResponse(opcode byte, serial uint16) []byte {
	res := []byte{0x78, 0x78, 0x05, opcode, 0, 0, 0, 0, 0x0D, 0x0A}
	binary.BigEndian.PutUint16(res[4:6], serial)
	binary.BigEndian.PutUint16(res[6:8], Checksum(res[2:6]))
	return res
}

func (c *WeTrack) Decode(buf []byte) (*Packet, error) {
	f, err := parseBinaryFrame(buf)
	if err != nil {
		return nil, err
	}
	if f.start != "7878" {
		return nil, fmt.Errorf("%w: wetrack does not use long frames", ErrMalformed)
	}

	pkt := &Packet{
		Protocol:    "wetrack",
		Opcode:      fmt.Sprintf("%02x", f.opcode),
		StartMarker: f.start,
		SerialNo:    f.serial,
		HasSerial:   true,
	}

	switch f.opcode {
	case opLogin:
		pkt.Kind = KindLogin
		pkt.IMEI = imeiFromLoginPayload(f.payload)
		pkt.Acks = []Ack{{Data: wetrackResponse(f.opcode, f.serial)}}

	case opStatus:
		pkt.Kind = KindStatus
		s, code, err := decodeTerminalStatus(f.payload, layoutET300)
		if err != nil {
			return nil, err
		}
		// WeTrack raises TEMPERED when external power is gone even
		// without an explicit power-cut alarm. Two causes, one code;
		// downstream consumers rely on the collapsed form.
		if !s.Charge {
			code = EventTempered
		}
		pkt.Status = s
		pkt.EventCode = code
		pkt.Acks = []Ack{{Data: wetrackResponse(f.opcode, f.serial)}}

	case opLocation, opAlarm:
		pkt.Kind = KindLocation
		fix, err := decodeBinaryFix(f.payload)
		if err != nil {
			return nil, err
		}
		pkt.Fix = fix
		if f.opcode == opAlarm {
			pkt.Kind = KindAlarm
			tail, err := alarmStatusBytes(f.payload, 27)
			if err != nil {
				return nil, err
			}
			s, code, err := decodeTerminalStatus(tail, layoutET300)
			if err != nil {
				return nil, err
			}
			if !s.Charge {
				code = EventTempered
			}
			pkt.Status = s
			pkt.EventCode = code
		}
	}

	return pkt, nil
}
