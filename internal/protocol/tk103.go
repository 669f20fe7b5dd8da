package protocol

import "fmt"

// TK103 speaks the same ASCII framing as GT02 on port 5001, but the
// server talks back: login is acked with AP05, and the 2nd and 3rd
// inbound frames trigger the two request-interval configuration
// responses regardless of their opcode.
type TK103 struct {
	frames uint16
}

func (c *TK103) Decode(buf []byte) (*Packet, error) {
	f, err := parseASCIIFrame(buf)
	if err != nil {
		return nil, err
	}
	c.frames++

	pkt := &Packet{
		Protocol:    "tk103",
		Opcode:      f.opcode,
		StartMarker: "(",
		IMEI:        f.imei,
		SerialNo:    c.frames,
		HasSerial:   true,
	}

	switch c.frames {
	case 2:
		pkt.Acks = append(pkt.Acks, Ack{Data: []byte(fmt.Sprintf("(%sAR05000A)", f.imei))})
	case 3:
		pkt.Acks = append(pkt.Acks, Ack{Data: []byte(fmt.Sprintf("(%sAR06003C)", f.imei))})
	}

	switch f.opcode {
	case asciiOpLogin:
		pkt.Kind = KindLogin
		pkt.Acks = append(pkt.Acks, Ack{Data: []byte(fmt.Sprintf("(%sAP05)", f.imei))})

	case asciiOpLocation:
		pkt.Kind = KindLocation
		body, err := parseASCIIBody(f.body)
		if err != nil {
			return nil, err
		}
		fix := body.fix
		fix.Extra = map[string]any{
			"voltage_level": 6,
			"charge":        body.charge,
			"ignition":      body.ignition,
			"temperature":   body.temperature,
			"voltage_input": body.ioState[5:],
			"distance":      body.distanceKM,
		}
		pkt.Fix = fix
		// External power gone is reported as a tamper event.
		if !body.charge {
			pkt.EventCode = EventTempered
		}
	}

	return pkt, nil
}
