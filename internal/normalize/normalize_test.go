package normalize

import (
	"testing"

	"github.com/quikmile/gps-ingester/internal/protocol"
)

func TestEvent(t *testing.T) {
	rec := Event(protocol.EventOnline)
	if rec["status"] != "ONLINE" {
		t.Errorf("expected status ONLINE, got %v", rec["status"])
	}
}

func TestLocation_MergesExtras(t *testing.T) {
	fix := &protocol.Fix{
		DeviceTime: "2019-03-24 05:59:37",
		Lat:        28.6139,
		Lng:        77.2090,
		Speed:      42,
		Course:     90,
		Satellites: 10,
		Tracking:   true,
		Accuracy:   "real-time",
		Extra:      map[string]any{"odometer": 1301.0, "lat": "overridden"},
	}

	rec := Location(fix)
	if rec["lat"] != 28.6139 {
		t.Errorf("canonical keys must win over extras, got %v", rec["lat"])
	}
	if rec["odometer"] != 1301.0 {
		t.Errorf("expected odometer extra, got %v", rec["odometer"])
	}
	if rec["satellites"] != 10 {
		t.Errorf("expected satellites 10, got %v", rec["satellites"])
	}
	if rec["gps_tracking"] != true {
		t.Errorf("expected gps_tracking, got %v", rec["gps_tracking"])
	}
	if rec["device_time"] != "2019-03-24 05:59:37" {
		t.Errorf("unexpected device_time %v", rec["device_time"])
	}
	if rec["gps_accuracy"] != "real-time" {
		t.Errorf("unexpected gps_accuracy %v", rec["gps_accuracy"])
	}
}

func TestLocation_OmitsAbsentFields(t *testing.T) {
	rec := Location(&protocol.Fix{Satellites: -1})
	if _, ok := rec["satellites"]; ok {
		t.Error("satellites must be omitted when the protocol does not report them")
	}
	if _, ok := rec["device_time"]; ok {
		t.Error("device_time must be omitted when empty")
	}
	if _, ok := rec["gps_accuracy"]; ok {
		t.Error("gps_accuracy must be omitted when empty")
	}
}

func TestStatus(t *testing.T) {
	engine := true
	activated := false
	s := &protocol.Status{
		VoltageLevel:      5,
		GSMSignalStrength: 4,
		Ignition:          true,
		Charge:            true,
		Tracking:          true,
		Engine:            &engine,
		Activated:         &activated,
		Language:          "English",
		Events:            map[string]any{"sos": true},
	}

	rec := Status(s)
	if rec["voltage_level"] != 5 || rec["gsm_signal_strength"] != 4 {
		t.Errorf("unexpected levels: %v", rec)
	}
	if rec["engine"] != true || rec["activated"] != false {
		t.Errorf("unexpected optional flags: %v", rec)
	}
	if rec["language"] != "English" {
		t.Errorf("unexpected language %v", rec["language"])
	}
	ev, ok := rec["events"].(map[string]any)
	if !ok || ev["sos"] != true {
		t.Errorf("unexpected events %v", rec["events"])
	}
}

func TestStatus_OptionalFieldsAbsent(t *testing.T) {
	rec := Status(&protocol.Status{})
	if _, ok := rec["engine"]; ok {
		t.Error("engine must be omitted when the layout does not report it")
	}
	if _, ok := rec["activated"]; ok {
		t.Error("activated must be omitted when the layout does not report it")
	}
	if _, ok := rec["language"]; ok {
		t.Error("language must be omitted when empty")
	}
	if ev, ok := rec["events"].(map[string]any); !ok || ev == nil {
		t.Error("events must always be a map")
	}
}

func TestAnalogEvent(t *testing.T) {
	rec := AnalogEvent(&protocol.Analog{ExternalVoltage: 12.34})
	analog, ok := rec["analog"].(map[string]any)
	if !ok || analog["external_voltage"] != 12.34 {
		t.Errorf("unexpected analog record %v", rec)
	}

	rec = AnalogEvent(nil)
	if analog, ok := rec["analog"].(map[string]any); !ok || len(analog) != 0 {
		t.Errorf("expected empty analog map, got %v", rec)
	}
}
