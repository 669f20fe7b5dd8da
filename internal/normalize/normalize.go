// Package normalize builds the canonical outbound records from decoded
// frames. Records are flat JSON objects; the publisher adds identity
// and timestamp before serialization.
package normalize

import "github.com/quikmile/gps-ingester/internal/protocol"

// Record is one outbound JSON object.
type Record map[string]any

// Event builds an event-topic record for a canonical status code.
func Event(code string) Record {
	return Record{"status": code}
}

// AnalogEvent builds the event-topic record for a GT06 analog frame.
func AnalogEvent(a *protocol.Analog) Record {
	analog := map[string]any{}
	if a != nil {
		analog["external_voltage"] = a.ExternalVoltage
	}
	return Record{"analog": analog}
}

// Location builds the location-topic record for a fix. Device-specific
// extras are merged in as-is; canonical keys win on collision.
func Location(f *protocol.Fix) Record {
	rec := Record{}
	for k, v := range f.Extra {
		rec[k] = v
	}
	rec["lat"] = f.Lat
	rec["lng"] = f.Lng
	rec["speed"] = f.Speed
	rec["course"] = f.Course
	rec["gps_tracking"] = f.Tracking
	if f.DeviceTime != "" {
		rec["device_time"] = f.DeviceTime
	}
	if f.Satellites >= 0 {
		rec["satellites"] = f.Satellites
	}
	if f.Accuracy != "" {
		rec["gps_accuracy"] = f.Accuracy
	}
	return rec
}

// Status builds the status-topic record for a terminal status report.
func Status(s *protocol.Status) Record {
	rec := Record{
		"voltage_level":       s.VoltageLevel,
		"gsm_signal_strength": s.GSMSignalStrength,
		"ignition":            s.Ignition,
		"charge":              s.Charge,
		"gps_tracking":        s.Tracking,
		"events":              s.Events,
	}
	if s.Events == nil {
		rec["events"] = map[string]any{}
	}
	if s.Engine != nil {
		rec["engine"] = *s.Engine
	}
	if s.Activated != nil {
		rec["activated"] = *s.Activated
	}
	if s.Language != "" {
		rec["language"] = s.Language
	}
	return rec
}
