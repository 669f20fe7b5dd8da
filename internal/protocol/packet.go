package protocol

import (
	"errors"
	"time"
)

// Kind classifies a decoded frame by its semantic type.
type Kind int

const (
	KindUnknown Kind = iota
	KindLogin
	KindLocation
	KindStatus
	KindAlarm
	KindAnalog
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindLocation:
		return "location"
	case KindStatus:
		return "status"
	case KindAlarm:
		return "alarm"
	case KindAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

// Canonical event codes published to the events topic.
const (
	EventOnline          = "ONLINE"
	EventOffline         = "OFFLINE"
	EventSOS             = "SOS"
	EventLowBattery      = "LOW_BATTERY"
	EventTempered        = "TEMPERED"
	EventShock           = "SHOCK"
	EventEngineCut       = "ENGINE_CUT"
	EventInvalidLocation = "INVALID_LOCATION"
)

// ErrMalformed is the root cause of every decode failure: bad markers,
// length mismatch, short payload, or checksum failure. A session that
// receives a malformed frame terminates.
var ErrMalformed = errors.New("malformed frame")

// Ack is a response the server owes the device for a frame.
// Delay zero means the ack is written before the frame is dispatched;
// a positive delay schedules the write without blocking the read loop.
type Ack struct {
	Data  []byte
	Delay time.Duration
}

// Fix is one decoded GPS position.
type Fix struct {
	DeviceTime string
	Lat        float64
	Lng        float64
	Speed      float64 // km/h
	Course     float64 // 0..359
	Satellites int     // -1 when the protocol does not report it
	Tracking   bool    // current GPS lock
	Accuracy   string  // "real-time" or "differential positioning"; empty when not reported

	// Extra carries device-specific fields merged into the location
	// record as-is (odometer, hdop, io state, embedded telemetry).
	Extra map[string]any
}

// Status is a decoded terminal status report.
type Status struct {
	VoltageLevel      int
	GSMSignalStrength int
	Ignition          bool
	Charge            bool
	Tracking          bool
	Activated         *bool // ET300/WeTrack only
	Engine            *bool // ET300/WeTrack only
	Language          string
	Events            map[string]any
}

// Analog carries a GT06 analog measurement frame (opcode 94).
type Analog struct {
	ExternalVoltage float64
}

// Packet is one decoded frame. Decode returns a freshly allocated value
// per frame; nothing is shared between calls or sessions.
type Packet struct {
	Protocol    string
	Kind        Kind
	Opcode      string // two hex digits for binary protocols, four chars for ASCII
	StartMarker string

	// IMEI is set on login frames, and on every frame for the
	// protocols that embed it (MT05, GT02, TK103).
	IMEI string

	SerialNo  uint16
	HasSerial bool

	Fix    *Fix
	Status *Status
	Analog *Analog

	// EventCode is the canonical event string raised by this frame
	// (alarm trigram, MT05 status bits), empty when none.
	EventCode string

	Acks []Ack
}

// Codec decodes one protocol family's frames. A codec instance belongs
// to a single session and may keep per-connection state: TK103 counts
// inbound frames to emit its interval-configuration responses, MT05 and
// the ASCII codecs synthesize serial numbers from a frame counter.
type Codec interface {
	Decode(buf []byte) (*Packet, error)
}

// Proto describes one supported device family.
type Proto struct {
	Name string
	Port int
	New  func() Codec
}

// All returns the supported device families in port order.
func All() []Proto {
	return []Proto{
		{Name: "et300", Port: 5000, New: func() Codec { return &ET300{} }},
		{Name: "tk103", Port: 5001, New: func() Codec { return &TK103{} }},
		{Name: "mt05", Port: 5002, New: func() Codec { return &MT05{} }},
		{Name: "gt02", Port: 5003, New: func() Codec { return &GT02{} }},
		{Name: "wetrack", Port: 5004, New: func() Codec { return &WeTrack{} }},
		{Name: "gt06", Port: 5005, New: func() Codec { return &GT06{} }},
	}
}

// Lookup finds a device family by name.
func Lookup(name string) (Proto, bool) {
	for _, p := range All() {
		if p.Name == name {
			return p, true
		}
	}
	return Proto{}, false
}
