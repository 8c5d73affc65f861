package hunt

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"hunterlog/strutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Purpose: Read an authoritative reference -> hunt count mapping.
// Key aspects: A JSON object {"K-1234": 5} or the POTA hunter CSV export.
// The CSV needs a Reference column; with a QSOs column the counts are read
// from it, otherwise each row counts as one hunt. References are upper-cased
// and repeated references are summed.
// Upstream: Reconciler.ReconcileFromCountFile.
// Downstream: parseCountJSON, parseCountCSV.
func ParseCountFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hunt: read count file: %w", err)
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseCountJSON(trimmed)
	}
	return parseCountCSV(bytes.NewReader(trimmed))
}

func parseCountJSON(data []byte) (map[string]int, error) {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("hunt: parse count json: %w", err)
	}
	out := make(map[string]int, len(raw))
	for ref, n := range raw {
		ref = strutil.NormalizeUpper(ref)
		if ref == "" {
			continue
		}
		out[ref] += n
	}
	return out, nil
}

func parseCountCSV(r io.Reader) (map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("hunt: parse count csv header: %w", err)
	}
	refCol, qsoCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "reference":
			refCol = i
		case "qsos":
			qsoCol = i
		}
	}
	if refCol < 0 {
		return nil, errors.New("hunt: count csv has no Reference column")
	}
	out := map[string]int{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("hunt: parse count csv line %d: %w", line, err)
		}
		if refCol >= len(rec) {
			continue
		}
		ref := strutil.NormalizeUpper(rec[refCol])
		if ref == "" {
			continue
		}
		n := 1
		if qsoCol >= 0 && qsoCol < len(rec) {
			v, err := strconv.Atoi(strings.TrimSpace(rec[qsoCol]))
			if err != nil {
				return nil, fmt.Errorf("hunt: count csv line %d: bad QSOs value %q", line, rec[qsoCol])
			}
			n = v
		}
		out[ref] += n
	}
	return out, nil
}
