// Package bands maps frequencies to amateur band names for log records.
package bands

import (
	"strconv"
	"strings"
)

// BandInfo describes an amateur radio band by name and frequency range in kHz.
type BandInfo struct {
	Name string  // canonical band name (e.g., "20m", "70cm")
	Min  float64 // minimum frequency in kHz
	Max  float64 // maximum frequency in kHz
}

var bandTable = []BandInfo{
	{Name: "2200m", Min: 135.7, Max: 137.8},
	{Name: "630m", Min: 472, Max: 479},
	{Name: "160m", Min: 1800, Max: 2000},
	{Name: "80m", Min: 3500, Max: 4000},
	{Name: "60m", Min: 5330, Max: 5405},
	{Name: "40m", Min: 7000, Max: 7300},
	{Name: "30m", Min: 10100, Max: 10150},
	{Name: "20m", Min: 14000, Max: 14350},
	{Name: "17m", Min: 18068, Max: 18168},
	{Name: "15m", Min: 21000, Max: 21450},
	{Name: "12m", Min: 24890, Max: 24990},
	{Name: "10m", Min: 28000, Max: 29700},
	{Name: "6m", Min: 50000, Max: 54000},
	{Name: "2m", Min: 144000, Max: 148000},
	{Name: "1.25m", Min: 222000, Max: 225000},
	{Name: "70cm", Min: 420000, Max: 450000},
	{Name: "33cm", Min: 902000, Max: 928000},
	{Name: "23cm", Min: 1240000, Max: 1300000},
	{Name: "13cm", Min: 2300000, Max: 2310000},
}

var bandLookup = func() map[string]BandInfo {
	m := make(map[string]BandInfo, len(bandTable))
	for _, entry := range bandTable {
		m[labelKey(entry.Name)] = entry
	}
	return m
}()

// Purpose: Resolve the band containing a frequency.
// Key aspects: Inclusive bounds; returns "" outside every band.
// Upstream: adif.Build, store.InsertQSO.
// Downstream: bandTable scan.
func NameForKHz(khz float64) string {
	for _, entry := range bandTable {
		if khz >= entry.Min && khz <= entry.Max {
			return entry.Name
		}
	}
	return ""
}

// NameForFrequency parses a kHz frequency string (as POTA and the QSO table
// store it) and returns its band name, or "" when unparsable or out of band.
func NameForFrequency(freq string) string {
	khz, ok := ParseKHz(freq)
	if !ok {
		return ""
	}
	return NameForKHz(khz)
}

// ParseKHz parses a kHz frequency string such as "14285" or "7074.5".
func ParseKHz(freq string) (float64, bool) {
	freq = strings.TrimSpace(freq)
	if freq == "" {
		return 0, false
	}
	khz, err := strconv.ParseFloat(freq, 64)
	if err != nil || khz <= 0 {
		return 0, false
	}
	return khz, true
}

var unitWords = strings.NewReplacer(
	"centimeters", "cm", "centimetres", "cm", "centimeter", "cm", "centimetre", "cm",
	"meters", "m", "metres", "m", "meter", "m", "metre", "m",
)

// labelKey folds a band label to its lookup key: lowercase, unit words
// shortened, spaces dropped, and "m" appended to a bare number.
func labelKey(label string) string {
	key := strings.ReplaceAll(unitWords.Replace(strings.ToLower(strings.TrimSpace(label))), " ", "")
	if n := len(key); n > 0 && key[n-1] >= '0' && key[n-1] <= '9' {
		key += "m"
	}
	return key
}

// Purpose: Map a user or ADIF band label onto the band table.
// Key aspects: Accepts "20 meters", "20M", "70CM" or a bare "20"; the
// returned name is the table's spelling. The boolean is false for labels
// that name no band in the table (including the empty label).
// Upstream: hunt.Pipeline.toQSO, adif.QSOFromFields.
// Downstream: bandLookup.
func Canonical(label string) (string, bool) {
	entry, ok := bandLookup[labelKey(label)]
	if !ok {
		return "", false
	}
	return entry.Name, true
}
