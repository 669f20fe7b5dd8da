package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MT05 speaks its own framing on port 5002:
//
//	40 40 LEN(2) IMEI(7 BCD bytes) OPCODE(2) PAYLOAD CRC(2) 0D 0A
//
// Every frame carries the IMEI. The location payload is an ASCII,
// GPRMC-like record split on '|' and ','.
type MT05 struct {
	frames uint16
}

const (
	mt05OpLogin    = "5000"
	mt05OpLocation = "9955"
)

func (c *MT05) Decode(buf []byte) (*Packet, error) {
	if len(buf) < 17 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a frame", ErrMalformed, len(buf))
	}
	if buf[0] != 0x40 || buf[1] != 0x40 {
		return nil, fmt.Errorf("%w: bad start marker %02x%02x", ErrMalformed, buf[0], buf[1])
	}
	if buf[len(buf)-2] != 0x0D || buf[len(buf)-1] != 0x0A {
		return nil, fmt.Errorf("%w: bad stop marker", ErrMalformed)
	}
	c.frames++

	pkt := &Packet{
		Protocol:    "mt05",
		Opcode:      hex.EncodeToString(buf[11:13]),
		StartMarker: "4040",
		IMEI:        hex.EncodeToString(buf[4:11]), // BCD digits read as hex
		SerialNo:    c.frames,
		HasSerial:   true,
	}

	switch pkt.Opcode {
	case mt05OpLogin:
		pkt.Kind = KindLogin
		// 40 40 00 12 IMEI 40 00 <trailer of the login frame>
		ack := make([]byte, 0, 17)
		ack = append(ack, 0x40, 0x40, 0x00, 0x12)
		ack = append(ack, buf[4:11]...)
		ack = append(ack, 0x40, 0x00)
		ack = append(ack, buf[len(buf)-4:]...)
		pkt.Acks = []Ack{{Data: ack}}

	case mt05OpLocation:
		fix, code, err := decodeMT05Fix(string(buf[13 : len(buf)-4]))
		if err != nil {
			return nil, err
		}
		pkt.Kind = KindLocation
		pkt.Fix = fix
		pkt.EventCode = code
	}

	return pkt, nil
}

// decodeMT05Fix parses the pipe-separated location payload. Section 0
// is the GPRMC-like record; sections 1..5 carry HDOP, altitude, status
// bit flags, battery voltages and the odometer.
func decodeMT05Fix(body string) (*Fix, string, error) {
	sections := make([][]string, 0, 6)
	for _, part := range strings.Split(body, "|") {
		sections = append(sections, strings.Split(part, ","))
	}
	if len(sections) < 6 || len(sections[0]) < 9 {
		return nil, "", fmt.Errorf("%w: location payload has %d sections", ErrMalformed, len(sections))
	}
	gprmc := sections[0]

	fix := &Fix{
		Satellites: -1,
		Tracking:   gprmc[1] == "A",
		Extra: map[string]any{
			"charge":        true,
			"voltage_level": 6,
		},
	}
	if !fix.Tracking {
		return fix, "", nil
	}

	if len(gprmc[0]) < 6 || len(gprmc[2]) < 3 || len(gprmc[4]) < 4 || len(gprmc[8]) < 6 {
		return nil, "", fmt.Errorf("%w: short gprmc fields", ErrMalformed)
	}

	date, clock := gprmc[8], gprmc[0]
	fix.DeviceTime = fmt.Sprintf("20%s-%s-%s %s:%s:%s",
		date[4:6], date[2:4], date[0:2], clock[0:2], clock[2:4], clock[4:6])

	var err error
	if fix.Lat, err = minutesCoordinate(gprmc[2], 2); err != nil {
		return nil, "", err
	}
	if gprmc[3] == "S" {
		fix.Lat = -fix.Lat
	}
	if fix.Lng, err = minutesCoordinate(gprmc[4], 3); err != nil {
		return nil, "", err
	}
	if gprmc[5] == "W" {
		fix.Lng = -fix.Lng
	}

	knots, err := strconv.ParseFloat(gprmc[6], 64)
	if err != nil {
		return nil, "", fmt.Errorf("%w: speed: %v", ErrMalformed, err)
	}
	fix.Speed = knots * 1.852
	if fix.Course, err = strconv.ParseFloat(gprmc[7], 64); err != nil {
		return nil, "", fmt.Errorf("%w: course: %v", ErrMalformed, err)
	}

	if hdop, err := strconv.ParseFloat(sections[1][0], 64); err == nil {
		fix.Extra["hdop"] = hdop
	}
	if alt, err := strconv.ParseFloat(sections[2][0], 64); err == nil {
		fix.Extra["alt"] = alt
	}
	if odo, err := strconv.ParseFloat(sections[5][0], 64); err == nil {
		fix.Extra["odometer"] = odo
	}
	if len(sections[4]) >= 2 {
		fix.Extra["gps_battery_level"] = mt05Voltage(sections[4][0])
		fix.Extra["voltage_level"] = mt05Voltage(sections[4][1]) / 4
	}

	events := map[string]any{}
	var code string
	statusHex := sections[3][0]
	if len(statusHex) >= 4 {
		if hexBit(statusHex, 0) {
			events["immobilizer"] = true
			code = EventEngineCut
		}
		if hexBit(statusHex, 1) {
			events["alarm"] = true
		}
		if hexBit(statusHex, 8) {
			events["sos"] = true
			code = EventSOS
		}
		if hexBit(statusHex, 9) {
			events["power_cut"] = true
			fix.Extra["charge"] = false
			code = EventTempered
		}
		fix.Extra["ignition"] = hexBit(statusHex, 12)
	}
	fix.Extra["events"] = events

	return fix, code, nil
}

// minutesCoordinate converts "ddmm.mmmm" (degDigits degree digits,
// minutes after) to decimal degrees.
func minutesCoordinate(s string, degDigits int) (float64, error) {
	deg, err1 := strconv.ParseFloat(s[:degDigits], 64)
	min, err2 := strconv.ParseFloat(s[degDigits:], 64)
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, s)
	}
	return deg + min/60, nil
}

// mt05Voltage scales a raw ADC reading to the 0..6 range.
func mt05Voltage(rawHex string) int {
	raw, err := strconv.ParseUint(rawHex, 16, 32)
	if err != nil {
		return 0
	}
	return int(raw * 6 / 1024)
}

// hexBit reports bit i of a hex digit string, numbered MSB-first.
func hexBit(s string, i int) bool {
	d, err := strconv.ParseUint(string(s[i/4]), 16, 8)
	if err != nil {
		return false
	}
	return d>>(3-i%4)&1 == 1
}
