package strutil

import "strings"

// NormalizeUpper trims and upper-cases a token whose case carries no meaning:
// callsigns, park references, modes.
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// NormalizeGrid returns a Maidenhead locator in its conventional casing:
// field letters upper, subsquare letters lower ("fn42AA" -> "FN42aa").
// Anything that is not a 4 or 6 character locator is only trimmed.
func NormalizeGrid(grid string) string {
	g := strings.TrimSpace(grid)
	if len(g) != 4 && len(g) != 6 {
		return g
	}
	if len(g) == 4 {
		return strings.ToUpper(g)
	}
	return strings.ToUpper(g[:4]) + strings.ToLower(g[4:])
}
