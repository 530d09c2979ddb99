// Package ingest converts raw uploaded CSV or JSON text into normalized
// site records.
//
// Per-row problems are tolerated: a malformed CSV line or a JSON element with
// missing or non-numeric coordinates is dropped, not fatal. Only a payload
// with the wrong overall shape, or one yielding zero usable records, is an
// error. Output order always matches input order.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rooftophq/rooftop/internal/domain"
)

// Parse error taxonomy. A parse failure rejects the whole upload; no partial
// batch is started from it.
var (
	// ErrRootNotArray indicates the JSON root is not an array.
	ErrRootNotArray = errors.New("json root must be an array of objects")

	// ErrNoValidRecords indicates nothing usable survived parsing.
	ErrNoValidRecords = errors.New("no valid site records found")

	// ErrMalformedFile indicates the payload is not parseable at all.
	ErrMalformedFile = errors.New("malformed input file")
)

// Format identifies the upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Parse dispatches to the CSV or JSON parser.
func Parse(raw string, format Format) ([]domain.SiteRecord, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(raw)
	case FormatJSON:
		return ParseJSON(raw)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrMalformedFile, format)
	}
}

// ParseCSV parses `id,latitude,longitude[,capture_date]` lines.
//
// The first line is skipped only when it is textually detectable as a header.
// Lines with fewer than three fields or non-numeric coordinates are dropped.
// A blank id falls back to a generated ordinal.
func ParseCSV(raw string) ([]domain.SiteRecord, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	start := 0
	if len(lines) > 0 && looksLikeHeader(lines[0]) {
		start = 1
	}

	var records []domain.SiteRecord
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}

		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if errLat != nil || errLon != nil || !domain.ValidCoordinates(lat, lon) {
			continue
		}

		id := strings.TrimSpace(parts[0])
		if id == "" {
			id = fmt.Sprintf("SITE-%d", len(records)+1)
		}

		rec := domain.SiteRecord{
			SampleID:  id,
			Latitude:  lat,
			Longitude: lon,
		}
		if len(parts) >= 4 {
			rec.CaptureDate = strings.TrimSpace(parts[3])
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoValidRecords
	}
	return records, nil
}

// looksLikeHeader reports whether a CSV line reads as a header row rather
// than data. Matching is on an id-like token in the first field.
func looksLikeHeader(line string) bool {
	first := strings.ToLower(strings.TrimSpace(strings.Split(line, ",")[0]))
	return first == "id" || first == "sample_id" || first == "sampleid" ||
		strings.Contains(first, "sample")
}

// jsonSite accepts both naming variants seen in the wild: sample_id/id and
// latitude/lat, longitude/lon. Coordinates may arrive as numbers or numeric
// strings.
type jsonSite struct {
	SampleID    string          `json:"sample_id"`
	ID          string          `json:"id"`
	Latitude    json.RawMessage `json:"latitude"`
	Lat         json.RawMessage `json:"lat"`
	Longitude   json.RawMessage `json:"longitude"`
	Lon         json.RawMessage `json:"lon"`
	CaptureDate string          `json:"capture_date"`
}

// ParseJSON parses a JSON array of site objects.
func ParseJSON(raw string) ([]domain.SiteRecord, error) {
	var root json.RawMessage
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	trimmed := strings.TrimSpace(string(root))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrRootNotArray
	}

	var elems []jsonSite
	if err := json.Unmarshal(root, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	var records []domain.SiteRecord
	for _, e := range elems {
		id := e.SampleID
		if id == "" {
			id = e.ID
		}
		if id == "" {
			continue
		}

		lat, okLat := coerceNumber(e.Latitude, e.Lat)
		lon, okLon := coerceNumber(e.Longitude, e.Lon)
		if !okLat || !okLon || !domain.ValidCoordinates(lat, lon) {
			continue
		}

		records = append(records, domain.SiteRecord{
			SampleID:    id,
			Latitude:    lat,
			Longitude:   lon,
			CaptureDate: e.CaptureDate,
		})
	}

	if len(records) == 0 {
		return nil, ErrNoValidRecords
	}
	return records, nil
}

// coerceNumber extracts a float from the first present raw value, accepting
// either a JSON number or a numeric string. A literal null is absent, not
// zero: it falls through to the next naming variant.
func coerceNumber(candidates ...json.RawMessage) (float64, bool) {
	for _, c := range candidates {
		if len(c) == 0 || string(c) == "null" {
			continue
		}
		var n float64
		if err := json.Unmarshal(c, &n); err == nil {
			return n, true
		}
		var s string
		if err := json.Unmarshal(c, &s); err == nil {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return n, true
			}
		}
		return 0, false
	}
	return 0, false
}
