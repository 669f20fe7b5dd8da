// Package geo holds the coordinate helpers used by reporting and
// downstream enrichment. Nothing here runs on the frame hot path.
package geo

import "math"

const earthRadiusKM = 6371.0

func rad(degrees float64) float64 { return degrees * math.Pi / 180 }
func deg(radians float64) float64 { return radians * 180 / math.Pi }

// Bearing returns the initial great-circle bearing from point 1 to
// point 2, in degrees 0..360.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	dLon := rad(lon2) - rad(lon1)
	y := math.Sin(dLon) * math.Cos(rad(lat2))
	x := math.Cos(rad(lat1))*math.Sin(rad(lat2)) -
		math.Sin(rad(lat1))*math.Cos(rad(lat2))*math.Cos(dLon)
	return math.Mod(deg(math.Atan2(y, x))+360, 360)
}

var directions = [16]string{
	"n", "nne", "ne", "ene", "e", "ese", "se", "sse",
	"s", "ssw", "sw", "wsw", "w", "wnw", "nw", "nnw",
}

// Direction maps a bearing to its 16-point compass name.
func Direction(bearing float64) string {
	i := int(math.Round(bearing/22.5)) % 16
	if i < 0 {
		i += 16
	}
	return directions[i]
}

// Distance returns the great-circle distance between two points in km.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// TentativeDistance estimates how far a vehicle may have travelled in
// the given gap, assuming the 500 km/h sanity ceiling. Used to flag
// implausible jumps between fixes.
func TentativeDistance(seconds float64) float64 {
	const speed = 27.7778 * 5 // m/s
	return speed * math.Abs(seconds) / 1000
}
