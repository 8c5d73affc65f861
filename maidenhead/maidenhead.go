// Package maidenhead converts Maidenhead locators to coordinates and computes
// great-circle distance and initial bearing between two locators.
package maidenhead

import (
	"math"
	"strings"
)

const (
	fieldLonSize  = 20.0
	fieldLatSize  = 10.0
	squareLonSize = 2.0
	squareLatSize = 1.0
	subLonSize    = squareLonSize / 24.0
	subLatSize    = squareLatSize / 24.0

	earthRadiusMiles = 3958.8
)

// Center returns the center of a 4 or 6 character locator. Any other length
// or an out-of-range character yields ok=false.
func Center(grid string) (lat, lon float64, ok bool) {
	g := strings.ToUpper(strings.TrimSpace(grid))
	if len(g) != 4 && len(g) != 6 {
		return 0, 0, false
	}
	if g[0] < 'A' || g[0] > 'R' || g[1] < 'A' || g[1] > 'R' {
		return 0, 0, false
	}
	if g[2] < '0' || g[2] > '9' || g[3] < '0' || g[3] > '9' {
		return 0, 0, false
	}
	lon = -180 + float64(g[0]-'A')*fieldLonSize + float64(g[2]-'0')*squareLonSize
	lat = -90 + float64(g[1]-'A')*fieldLatSize + float64(g[3]-'0')*squareLatSize
	if len(g) == 4 {
		return lat + squareLatSize/2, lon + squareLonSize/2, true
	}
	if g[4] < 'A' || g[4] > 'X' || g[5] < 'A' || g[5] > 'X' {
		return 0, 0, false
	}
	lon += float64(g[4]-'A')*subLonSize + subLonSize/2
	lat += float64(g[5]-'A')*subLatSize + subLatSize/2
	return lat, lon, true
}

// Grid4 returns the 4-character locator containing lat/lon.
func Grid4(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "", false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false
	}
	// Clamp the closed upper edges into the last field.
	lat = math.Min(lat, 89.999999)
	lon = math.Min(lon, 179.999999)
	adjLon := lon + 180
	adjLat := lat + 90
	fieldLon := int(adjLon / fieldLonSize)
	fieldLat := int(adjLat / fieldLatSize)
	squareLon := int((adjLon - float64(fieldLon)*fieldLonSize) / squareLonSize)
	squareLat := int((adjLat - float64(fieldLat)*fieldLatSize) / squareLatSize)
	return string([]byte{
		byte('A' + fieldLon),
		byte('A' + fieldLat),
		byte('0' + squareLon),
		byte('0' + squareLat),
	}), true
}

// Purpose: Distance and initial bearing from one locator to another.
// Key aspects: Haversine on a spherical earth; miles to match what hunters
// see on the POTA map; bearing in degrees [0,360).
// Upstream: hunt.QSOFromSpot.
// Downstream: Center.
func Path(from, to string) (miles, bearing float64, ok bool) {
	lat1, lon1, ok1 := Center(from)
	lat2, lon2, ok2 := Center(to)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := (lat2 - lat1) * math.Pi / 180
	dl := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	miles = 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	y := math.Sin(dl) * math.Cos(p2)
	x := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dl)
	bearing = math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	return miles, bearing, true
}
