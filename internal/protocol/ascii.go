package protocol

import (
	"fmt"
	"strconv"
)

// ASCII framing shared by GT02 and TK103:
//
//	( IMEI(12) OPCODE(4) BODY )
//
// The location body is a fixed-layout field string; offsets below
// follow the vendor document.

const (
	asciiOpLogin    = "BP05"
	asciiOpLocation = "BR00"
)

type asciiFrame struct {
	imei   string
	opcode string
	body   string
}

func parseASCIIFrame(buf []byte) (*asciiFrame, error) {
	if len(buf) < 18 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a frame", ErrMalformed, len(buf))
	}
	if buf[0] != '(' || buf[len(buf)-1] != ')' {
		return nil, fmt.Errorf("%w: bad frame delimiters %q %q", ErrMalformed, buf[0], buf[len(buf)-1])
	}
	s := string(buf)
	return &asciiFrame{
		imei:   s[1:13],
		opcode: s[13:17],
		body:   s[17 : len(s)-1],
	}, nil
}

// asciiBody is the decoded fixed-layout location body.
type asciiBody struct {
	fix         *Fix
	charge      bool
	ignition    bool
	temperature string
	ioState     string
	distanceKM  float64
}

func parseASCIIBody(body string) (*asciiBody, error) {
	if len(body) < 62 {
		return nil, fmt.Errorf("%w: location body %d chars, want at least 62", ErrMalformed, len(body))
	}

	latDeg, err1 := strconv.Atoi(body[7:9])
	latMin, err2 := strconv.ParseFloat(body[9:16], 64)
	lngDeg, err3 := strconv.Atoi(body[17:20])
	lngMin, err4 := strconv.ParseFloat(body[20:27], 64)
	speed, err5 := strconv.ParseFloat(body[28:33], 64)
	course, err6 := strconv.ParseFloat(body[39:45], 64)
	distRaw, err7 := strconv.ParseUint(body[54:62], 16, 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7} {
		if err != nil {
			return nil, fmt.Errorf("%w: location body: %v", ErrMalformed, err)
		}
	}

	fix := &Fix{
		DeviceTime: fmt.Sprintf("20%s-%s-%s %s:%s:%s",
			body[0:2], body[2:4], body[4:6], body[33:35], body[35:37], body[37:39]),
		Lat:        float64(latDeg) + latMin/60,
		Lng:        float64(lngDeg) + lngMin/60,
		Speed:      speed,
		Course:     course,
		Satellites: -1,
		Tracking:   body[6] == 'A',
	}
	if body[16] == 'S' {
		fix.Lat = -fix.Lat
	}
	if body[27] == 'W' {
		fix.Lng = -fix.Lng
	}

	io := body[45:53]
	return &asciiBody{
		fix:         fix,
		charge:      io[0] == '0',
		ignition:    io[1] == '1',
		temperature: io[2:5],
		ioState:     io,
		distanceKM:  float64(distRaw) / 1000,
	}, nil
}
