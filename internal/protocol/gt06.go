package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// gt06Response is the canned server response the GT06 expects. The
// devices accept it without a per-frame serial echo, so it is a
// constant rather than a recomputed CRC echo.
var gt06Response = []byte{0x78, 0x78, 0x05, 0x01, 0x00, 0x05, 0x9F, 0xF8, 0x0D, 0x0A}

// gt06StatusAckDelay is how long the status ack is held back. The delay
// runs on a detached timer so the read loop keeps flowing.
const gt06StatusAckDelay = 10 * time.Second

// GT06 speaks both the short and the long (79 79) framing on port
// 5005, and adds the analog measurement frame (opcode 94).
type GT06 struct{}

func (c *GT06) Decode(buf []byte) (*Packet, error) {
	f, err := parseBinaryFrame(buf)
	if err != nil {
		return nil, err
	}

	pkt := &Packet{
		Protocol:    "gt06",
		Opcode:      fmt.Sprintf("%02x", f.opcode),
		StartMarker: f.start,
		SerialNo:    f.serial,
		HasSerial:   true,
	}

	switch f.opcode {
	case opLogin:
		pkt.Kind = KindLogin
		pkt.IMEI = imeiFromLoginPayload(f.payload)
		pkt.Acks = []Ack{{Data: gt06Response}}

	case opStatus:
		pkt.Kind = KindStatus
		s, code, err := decodeTerminalStatus(f.payload, layoutGT06)
		if err != nil {
			return nil, err
		}
		pkt.Status = s
		pkt.EventCode = code
		pkt.Acks = []Ack{{Data: gt06Response, Delay: gt06StatusAckDelay}}

	case opLocation, opAlarm:
		pkt.Kind = KindLocation
		fix, err := decodeBinaryFix(f.payload)
		if err != nil {
			return nil, err
		}
		pkt.Fix = fix
		if f.opcode == opAlarm {
			pkt.Kind = KindAlarm
			tail, err := alarmStatusBytes(f.payload, 26)
			if err != nil {
				return nil, err
			}
			s, code, err := decodeTerminalStatus(tail, layoutGT06)
			if err != nil {
				return nil, err
			}
			pkt.Status = s
			pkt.EventCode = code
		}

	case opAnalog:
		pkt.Kind = KindAnalog
		if len(f.payload) < 3 {
			return nil, fmt.Errorf("%w: analog payload %d bytes, want at least 3", ErrMalformed, len(f.payload))
		}
		// Sub-opcode 00 carries the external supply voltage in
		// centivolts; other sub-opcodes are ignored.
		if f.payload[0] == 0x00 {
			pkt.Analog = &Analog{
				ExternalVoltage: float64(binary.BigEndian.Uint16(f.payload[1:3])) / 100,
			}
		}
	}

	return pkt, nil
}
