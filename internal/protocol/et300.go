package protocol

import "fmt"

// ET300 speaks the short GT06 framing on port 5000. The server echoes
// the frame header and trailer back on login; no other frame is acked.
type ET300 struct{}

func (c *ET300) Decode(buf []byte) (*Packet, error) {
	f, err := parseBinaryFrame(buf)
	if err != nil {
		return nil, err
	}
	if f.start != "7878" {
		return nil, fmt.Errorf("%w: et300 does not use long frames", ErrMalformed)
	}

	pkt := &Packet{
		Protocol:    "et300",
		Opcode:      fmt.Sprintf("%02x", f.opcode),
		StartMarker: f.start,
		SerialNo:    f.serial,
		HasSerial:   true,
	}

	switch f.opcode {
	case opLogin:
		pkt.Kind = KindLogin
		pkt.IMEI = imeiFromLoginPayload(f.payload)
		// Echo start + length + opcode + serial + crc + stop.
		ack := make([]byte, 0, 10)
		ack = append(ack, buf[:4]...)
		ack = append(ack, buf[len(buf)-6:]...)
		pkt.Acks = []Ack{{Data: ack}}

	case opStatus:
		pkt.Kind = KindStatus
		s, code, err := decodeTerminalStatus(f.payload, layoutET300)
		if err != nil {
			return nil, err
		}
		pkt.Status = s
		pkt.EventCode = code

	case opLocation, opAlarm:
		pkt.Kind = KindLocation
		fix, err := decodeBinaryFix(f.payload)
		if err != nil {
			return nil, err
		}
		pkt.Fix = fix
		if f.opcode == opAlarm {
			pkt.Kind = KindAlarm
			// Alarm frames append the status bytes after the location
			// block and the LBS block.
			tail, err := alarmStatusBytes(f.payload, 27)
			if err != nil {
				return nil, err
			}
			s, code, err := decodeTerminalStatus(tail, layoutET300)
			if err != nil {
				return nil, err
			}
			pkt.Status = s
			pkt.EventCode = code
		}
	}

	return pkt, nil
}
