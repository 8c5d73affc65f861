// Package adif builds, writes and reads ADIF text records for hunted QSOs.
package adif

import (
	"strconv"
	"strings"

	"hunterlog/bands"
	"hunterlog/store"
)

const endOfRecord = "<EOR>\n"

// Station is the logging station's identity as it appears in each record,
// plus the UDP listener that receives a copy of every record.
type Station struct {
	Callsign string
	Grid     string
	Host     string
	Port     int
}

// Field renders one "<TAG:LEN>VALUE\n" element. LEN is the UTF-8 byte length
// of value and tag is upper-cased.
func Field(tag, value string) string {
	var b strings.Builder
	b.Grow(len(tag) + len(value) + 8)
	b.WriteByte('<')
	b.WriteString(strings.ToUpper(tag))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte('>')
	b.WriteString(value)
	b.WriteByte('\n')
	return b.String()
}

// Purpose: Render the ADIF record for a stored QSO.
// Key aspects: Fixed field order; BAND is derived from the kHz frequency;
// MODE is emitted unchanged; identical inputs give identical bytes.
// Upstream: Log.LogQSO, ExportAll.
// Downstream: Field, bands.NameForFrequency, FormatFreqMHz.
func Build(q store.QSO, st Station) string {
	ts := q.Time.UTC()
	var b strings.Builder
	b.WriteString(Field("band", bands.NameForFrequency(q.Freq)))
	b.WriteString(Field("call", q.Call))
	b.WriteString(Field("comment", q.Comment))
	b.WriteString(Field("sig", q.Sig))
	b.WriteString(Field("sig_info", q.SigInfo))
	b.WriteString(Field("gridsquare", q.Gridsquare))
	b.WriteString(Field("mode", q.Mode))
	b.WriteString(Field("operator", st.Callsign))
	b.WriteString(Field("rst_rcvd", q.RSTRecv))
	b.WriteString(Field("rst_sent", q.RSTSent))
	b.WriteString(Field("freq", FormatFreqMHz(q.Freq)))
	b.WriteString(Field("qso_date", ts.Format("20060102")))
	b.WriteString(Field("time_on", ts.Format("150405")))
	b.WriteString(Field("my_gridsquare", st.Grid))
	b.WriteString(endOfRecord)
	return b.String()
}

// FormatFreqMHz converts a kHz string to MHz with at least one fractional
// digit ("14285" -> "14.285", "14000" -> "14.0"). Unparsable input is
// returned trimmed and unchanged.
func FormatFreqMHz(khz string) string {
	v, ok := bands.ParseKHz(khz)
	if !ok {
		return strings.TrimSpace(khz)
	}
	s := strconv.FormatFloat(v/1000, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Purpose: Split ADIF text into fields, honoring each declared length.
// Key aspects: Values are taken by byte count, so embedded '<' or newlines
// survive; tags are upper-cased; a record ends at <EOR> and the header at
// <EOH>. Text between fields is ignored. The returned records exclude the
// header.
// Upstream: ReadRecords, tests.
// Downstream: none.
func ParseFields(text string) []map[string]string {
	var records []map[string]string
	cur := map[string]string{}
	i := 0
	for {
		open := strings.IndexByte(text[i:], '<')
		if open < 0 {
			break
		}
		open += i
		closeIdx := strings.IndexByte(text[open:], '>')
		if closeIdx < 0 {
			break
		}
		closeIdx += open
		spec := text[open+1 : closeIdx]
		i = closeIdx + 1

		tag, rest, hasLen := strings.Cut(spec, ":")
		tag = strings.ToUpper(strings.TrimSpace(tag))
		switch tag {
		case "EOH":
			cur = map[string]string{}
			continue
		case "EOR":
			if len(cur) > 0 {
				records = append(records, cur)
			}
			cur = map[string]string{}
			continue
		}
		if !hasLen {
			continue
		}
		// An optional type indicator follows a second colon ("<FREQ:6:N>").
		lenStr, _, _ := strings.Cut(rest, ":")
		n, err := strconv.Atoi(strings.TrimSpace(lenStr))
		if err != nil || n < 0 || i+n > len(text) {
			break
		}
		cur[tag] = text[i : i+n]
		i += n
	}
	return records
}
