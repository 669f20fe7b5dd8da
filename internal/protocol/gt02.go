package protocol

import "strconv"

// GT02 speaks the ASCII framing on port 5003. It never gets an ack;
// serial numbers are synthesized from the per-session frame counter.
type GT02 struct {
	frames uint16
}

func (c *GT02) Decode(buf []byte) (*Packet, error) {
	f, err := parseASCIIFrame(buf)
	if err != nil {
		return nil, err
	}
	c.frames++

	pkt := &Packet{
		Protocol:    "gt02",
		Opcode:      f.opcode,
		StartMarker: "(",
		IMEI:        f.imei,
		SerialNo:    c.frames,
		HasSerial:   true,
	}

	switch f.opcode {
	case asciiOpLogin:
		pkt.Kind = KindLogin

	case asciiOpLocation:
		pkt.Kind = KindLocation
		body, err := parseASCIIBody(f.body)
		if err != nil {
			return nil, err
		}
		fix := body.fix
		voltage := 0.0
		if raw, err := strconv.ParseUint(body.ioState[5:8], 16, 32); err == nil {
			voltage = float64(raw) / 100
		}
		fix.Extra = map[string]any{
			"voltage_level":  6,
			"charge":         body.charge,
			"ignition":       body.ignition,
			"temperature":    body.temperature,
			"voltage_input":  voltage,
			"total_distance": body.distanceKM,
		}
		pkt.Fix = fix
	}

	return pkt, nil
}
