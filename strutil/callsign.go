package strutil

import "strings"

// portableModifiers are slash segments that qualify an operation rather than
// name the operator. Single letters and digit-only segments are dropped too.
var portableModifiers = map[string]struct{}{
	"MM":   {},
	"AM":   {},
	"QRP":  {},
	"QRPP": {},
}

// Purpose: Reduce a callsign to the identity the POTA stats endpoint keys on.
// Key aspects: Drops numeric SSIDs and portable modifiers, then keeps the
// segment shaped like a callsign (a digit with letters on both sides).
// A leading segment is a location prefix, so a later callsign-shaped
// segment wins over it ("VP2E/N1A" -> "N1A", "KH6/W1AW/P" -> "W1AW").
// Upstream: pota.Client.ActivatorStats, store activator lookups.
// Downstream: NormalizeUpper, stripNumericSSID, looksLikeCall.
func BaseCall(call string) string {
	call = NormalizeUpper(call)
	if call == "" {
		return ""
	}
	call = stripNumericSSID(call)
	if !strings.Contains(call, "/") {
		return call
	}
	parts := strings.Split(call, "/")
	lead, later, fallback := "", "", ""
	for i, part := range parts {
		if isPortableModifier(part) {
			continue
		}
		if len(part) > len(fallback) {
			fallback = part
		}
		if !looksLikeCall(part) {
			continue
		}
		if i == 0 {
			lead = part
		} else if len(part) > len(later) {
			later = part
		}
	}
	switch {
	case later != "":
		return later
	case lead != "":
		return lead
	case fallback != "":
		return fallback
	}
	return call
}

func isPortableModifier(part string) bool {
	if len(part) <= 1 {
		return true
	}
	if _, ok := portableModifiers[part]; ok {
		return true
	}
	for i := 0; i < len(part); i++ {
		if part[i] < '0' || part[i] > '9' {
			return false
		}
	}
	return true
}

// looksLikeCall reports whether s has a digit with a letter somewhere before
// and after it, as every amateur callsign does.
func looksLikeCall(s string) bool {
	letterBefore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			letterBefore = true
		case c >= '0' && c <= '9' && letterBefore:
			for j := i + 1; j < len(s); j++ {
				if s[j] >= 'A' && s[j] <= 'Z' {
					return true
				}
			}
			return false
		}
	}
	return false
}

// stripNumericSSID removes a trailing "-<digits>" suffix and leaves anything
// else untouched.
func stripNumericSSID(call string) string {
	idx := strings.LastIndexByte(call, '-')
	if idx <= 0 || idx == len(call)-1 {
		return call
	}
	suffix := call[idx+1:]
	for i := 0; i < len(suffix); i++ {
		if suffix[i] < '0' || suffix[i] > '9' {
			return call
		}
	}
	return call[:idx]
}
