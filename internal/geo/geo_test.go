package geo

import (
	"math"
	"testing"
)

func TestBearing(t *testing.T) {
	if b := Bearing(0, 0, 0, 1); math.Abs(b-90) > 0.01 {
		t.Errorf("expected bearing 90 heading east, got %f", b)
	}
	if b := Bearing(0, 0, 1, 0); math.Abs(b) > 0.01 {
		t.Errorf("expected bearing 0 heading north, got %f", b)
	}
	if b := Bearing(0, 1, 0, 0); math.Abs(b-270) > 0.01 {
		t.Errorf("expected bearing 270 heading west, got %f", b)
	}
}

func TestDirection(t *testing.T) {
	cases := []struct {
		bearing float64
		want    string
	}{
		{0, "n"},
		{45, "ne"},
		{90, "e"},
		{180, "s"},
		{270, "w"},
		{350, "n"},
		{348, "nnw"},
	}
	for _, tc := range cases {
		if got := Direction(tc.bearing); got != tc.want {
			t.Errorf("bearing %f: expected %s, got %s", tc.bearing, tc.want, got)
		}
	}
}

func TestDistance(t *testing.T) {
	// One degree of longitude on the equator.
	d := Distance(0, 0, 0, 1)
	if math.Abs(d-111.19) > 0.1 {
		t.Errorf("expected ~111.19 km, got %f", d)
	}
	if d := Distance(28.6139, 77.2090, 28.6139, 77.2090); d != 0 {
		t.Errorf("expected 0 km for identical points, got %f", d)
	}
}

func TestTentativeDistance(t *testing.T) {
	// One hour at the sanity ceiling is about 500 km.
	d := TentativeDistance(3600)
	if math.Abs(d-500) > 0.1 {
		t.Errorf("expected ~500 km, got %f", d)
	}
	if TentativeDistance(-3600) != d {
		t.Error("negative gaps must be treated as their magnitude")
	}
}
