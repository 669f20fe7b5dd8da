package protocol

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildShortFrame assembles a valid 78 78 frame around the given opcode
// and payload, computing the real checksum.
func buildShortFrame(opcode byte, payload []byte, serial uint16) []byte {
	frame := make([]byte, 0, len(payload)+10)
	frame = append(frame, 0x78, 0x78, byte(len(payload)+5), opcode)
	frame = append(frame, payload...)
	frame = append(frame, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(frame[len(frame)-4:], serial)
	crc := Checksum(frame[2 : len(frame)-2])
	binary.BigEndian.PutUint16(frame[len(frame)-2:], crc)
	return append(frame, 0x0D, 0x0A)
}

// buildLongFrame assembles a 79 79 frame with a two-byte length field.
func buildLongFrame(opcode byte, payload []byte, serial uint16) []byte {
	frame := make([]byte, 0, len(payload)+11)
	frame = append(frame, 0x79, 0x79, 0, 0, opcode)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)+5))
	frame = append(frame, payload...)
	frame = append(frame, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(frame[len(frame)-4:], serial)
	crc := Checksum(frame[2 : len(frame)-2])
	binary.BigEndian.PutUint16(frame[len(frame)-2:], crc)
	return append(frame, 0x0D, 0x0A)
}

// buildFixBlock packs an 18-byte location block for the given position.
func buildFixBlock(lat, lng float64, speed byte, course uint16) []byte {
	p := make([]byte, 18)
	copy(p, []byte{19, 3, 24, 5, 59, 37}) // 2019-03-24 05:59:37
	p[6] = 0x0A                           // 10 satellites
	binary.BigEndian.PutUint32(p[7:11], uint32(math.Round(lat*30000*60)))
	binary.BigEndian.PutUint32(p[11:15], uint32(math.Round(lng*30000*60)))
	p[15] = speed
	binary.BigEndian.PutUint16(p[16:18], course)
	return p
}

func TestParseBinaryFrame_Short(t *testing.T) {
	frame := buildShortFrame(opLogin, []byte{0x03, 0x55, 0x63, 0x70, 0x64, 0x43, 0x24, 0x91}, 10)

	f, err := parseBinaryFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.start != "7878" {
		t.Errorf("expected start 7878, got %s", f.start)
	}
	if f.opcode != opLogin {
		t.Errorf("expected opcode %02x, got %02x", opLogin, f.opcode)
	}
	if f.serial != 10 {
		t.Errorf("expected serial 10, got %d", f.serial)
	}
	if len(f.payload) != 8 {
		t.Errorf("expected 8 payload bytes, got %d", len(f.payload))
	}
}

func TestParseBinaryFrame_Long(t *testing.T) {
	frame := buildLongFrame(opLocation, buildFixBlock(28.6139, 77.2090, 42, 0x145A), 7)

	f, err := parseBinaryFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.start != "7979" {
		t.Errorf("expected start 7979, got %s", f.start)
	}
	if f.opcode != opLocation {
		t.Errorf("expected opcode %02x, got %02x", opLocation, f.opcode)
	}
}

func TestParseBinaryFrame_BadStartMarker(t *testing.T) {
	frame := buildShortFrame(opLogin, []byte{0x03, 0x55}, 1)
	frame[0] = 0x77

	if _, err := parseBinaryFrame(frame); err == nil {
		t.Fatal("expected error for bad start marker")
	}
}

func TestParseBinaryFrame_BadStopMarker(t *testing.T) {
	frame := buildShortFrame(opLogin, []byte{0x03, 0x55}, 1)
	frame[len(frame)-1] = 0x00

	if _, err := parseBinaryFrame(frame); err == nil {
		t.Fatal("expected error for bad stop marker")
	}
}

func TestParseBinaryFrame_LengthMismatch(t *testing.T) {
	frame := buildShortFrame(opLogin, []byte{0x03, 0x55}, 1)
	frame[2]++

	if _, err := parseBinaryFrame(frame); err == nil {
		t.Fatal("expected error for declared length mismatch")
	}
}

func TestParseBinaryFrame_BadChecksum(t *testing.T) {
	frame := buildShortFrame(opLogin, []byte{0x03, 0x55}, 1)
	frame[len(frame)-3] ^= 0xFF

	if _, err := parseBinaryFrame(frame); err == nil {
		t.Fatal("expected error for corrupted checksum")
	}
}

func TestParseBinaryFrame_TooShort(t *testing.T) {
	if _, err := parseBinaryFrame([]byte{0x78, 0x78, 0x0D, 0x0A}); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestIMEIFromLoginPayload(t *testing.T) {
	payload := []byte{0x03, 0x55, 0x63, 0x70, 0x64, 0x43, 0x24, 0x91}
	if got := imeiFromLoginPayload(payload); got != "355637064432491" {
		t.Errorf("expected IMEI 355637064432491, got %s", got)
	}
}

func TestDecodeBinaryFix_NorthEast(t *testing.T) {
	// Positioned, east (bit 5 set), course 90.
	fix, err := decodeBinaryFix(buildFixBlock(28.6139, 77.2090, 42, 0x1000|0x0400|90))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(fix.Lat-28.6139) > 1e-6 {
		t.Errorf("expected lat 28.6139, got %f", fix.Lat)
	}
	if math.Abs(fix.Lng-77.2090) > 1e-6 {
		t.Errorf("expected lng 77.2090, got %f", fix.Lng)
	}
	if fix.Speed != 42 {
		t.Errorf("expected speed 42, got %f", fix.Speed)
	}
	if fix.Course != 90 {
		t.Errorf("expected course 90, got %f", fix.Course)
	}
	if !fix.Tracking {
		t.Error("expected tracking fix")
	}
	if fix.Satellites != 10 {
		t.Errorf("expected 10 satellites, got %d", fix.Satellites)
	}
	if fix.DeviceTime != "2019-03-24 05:59:37" {
		t.Errorf("unexpected device time %q", fix.DeviceTime)
	}
	if fix.Accuracy != "real-time" {
		t.Errorf("unexpected accuracy %q", fix.Accuracy)
	}
}

func TestDecodeBinaryFix_SouthWest(t *testing.T) {
	// South bit set, west bit CLEAR: both hemispheres negative.
	fix, err := decodeBinaryFix(buildFixBlock(28.6139, 77.2090, 0, 0x1000|0x0800|90))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Lat >= 0 {
		t.Errorf("expected negative lat, got %f", fix.Lat)
	}
	if fix.Lng >= 0 {
		t.Errorf("expected negative lng, got %f", fix.Lng)
	}
}

func TestDecodeBinaryFix_Differential(t *testing.T) {
	fix, err := decodeBinaryFix(buildFixBlock(1, 1, 0, 0x2000|0x0400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Accuracy != "differential positioning" {
		t.Errorf("unexpected accuracy %q", fix.Accuracy)
	}
	if fix.Tracking {
		t.Error("expected no tracking when positioned bit is clear")
	}
}

func TestDecodeBinaryFix_ShortPayload(t *testing.T) {
	if _, err := decodeBinaryFix(make([]byte, 17)); err == nil {
		t.Fatal("expected error for short location payload")
	}
}

func TestDecodeTerminalStatus_ET300(t *testing.T) {
	// Engine on, tracking, SOS trigram, charge, ignition.
	s, code, err := decodeTerminalStatus([]byte{0x66, 0x05, 0x04, 0x01, 0x02}, layoutET300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != EventSOS {
		t.Errorf("expected SOS, got %q", code)
	}
	if s.Engine == nil || !*s.Engine {
		t.Error("expected engine on")
	}
	if !s.Tracking || !s.Charge || !s.Ignition {
		t.Errorf("unexpected flags: tracking=%v charge=%v ignition=%v", s.Tracking, s.Charge, s.Ignition)
	}
	if s.Activated == nil || *s.Activated {
		t.Error("expected activated=false")
	}
	if s.VoltageLevel != 5 || s.GSMSignalStrength != 4 {
		t.Errorf("unexpected levels: voltage=%d gsm=%d", s.VoltageLevel, s.GSMSignalStrength)
	}
	if s.Language != "English" {
		t.Errorf("unexpected language %q", s.Language)
	}
	if s.Events["sos"] != true {
		t.Errorf("expected sos event flag, got %v", s.Events)
	}
}

func TestDecodeTerminalStatus_GT06(t *testing.T) {
	// Charge, tracking, low-battery trigram.
	s, code, err := decodeTerminalStatus([]byte{0x2E, 0x06, 0x03, 0x00, 0x01}, layoutGT06)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != EventLowBattery {
		t.Errorf("expected LOW_BATTERY, got %q", code)
	}
	if !s.Charge || !s.Tracking {
		t.Errorf("unexpected flags: charge=%v tracking=%v", s.Charge, s.Tracking)
	}
	if s.Engine != nil || s.Activated != nil {
		t.Error("GT06 layout must not set engine or activated")
	}
	if s.Language != "Chinese" {
		t.Errorf("unexpected language %q", s.Language)
	}
}

func TestDecodeTerminalStatus_GT06Immobilizer(t *testing.T) {
	s, code, err := decodeTerminalStatus([]byte{0x01, 0x06, 0x03, 0x00, 0x00}, layoutGT06)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != EventEngineCut {
		t.Errorf("expected ENGINE_CUT, got %q", code)
	}
	if s.Events["immobilizer"] != true {
		t.Errorf("expected immobilizer flag, got %v", s.Events)
	}
}

func TestTrigramEvent(t *testing.T) {
	cases := []struct {
		trigram byte
		code    string
		flag    string
	}{
		{0b100, EventSOS, "sos"},
		{0b011, EventLowBattery, "low_battery"},
		{0b010, EventTempered, "power_cut"},
		{0b001, EventShock, "shock"},
		{0b000, "", ""},
	}
	for _, tc := range cases {
		events := map[string]any{}
		if got := trigramEvent(tc.trigram, events); got != tc.code {
			t.Errorf("trigram %03b: expected %q, got %q", tc.trigram, tc.code, got)
		}
		if tc.flag != "" && events[tc.flag] != true {
			t.Errorf("trigram %03b: expected %s flag", tc.trigram, tc.flag)
		}
	}
}
