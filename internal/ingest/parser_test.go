package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV_SkipsMalformedLines(t *testing.T) {
	// Well-formed and malformed lines interleaved: only the well-formed
	// survive, in their original relative order.
	raw := `id,lat,lon
S1,28.6139,77.2090
S2,not-a-number,77.21
garbage line
S3,19.0760,72.8777
S4,91.5,10.0
S5,12.9716,77.5946`

	records, err := ParseCSV(raw)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "S1", records[0].SampleID)
	assert.Equal(t, "S3", records[1].SampleID)
	assert.Equal(t, "S5", records[2].SampleID)
	assert.InDelta(t, 28.6139, records[0].Latitude, 1e-9)
	assert.InDelta(t, 77.2090, records[0].Longitude, 1e-9)
}

func TestParseCSV_HeaderDetection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantIDs []string
	}{
		{
			name:    "id header skipped",
			raw:     "id,latitude,longitude\nA,1,2",
			wantIDs: []string{"A"},
		},
		{
			name:    "sample_id header skipped",
			raw:     "sample_id,lat,lon\nA,1,2",
			wantIDs: []string{"A"},
		},
		{
			name:    "data-looking first line kept",
			raw:     "A,1,2\nB,3,4",
			wantIDs: []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParseCSV(tt.raw)
			require.NoError(t, err)
			var ids []string
			for _, r := range records {
				ids = append(ids, r.SampleID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParseCSV_OptionalCaptureDateAndOrdinalID(t *testing.T) {
	raw := "id,lat,lon,date\nS1,1.0,2.0,2023-06-01\n,3.0,4.0"

	records, err := ParseCSV(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2023-06-01", records[0].CaptureDate)
	assert.Equal(t, "SITE-2", records[1].SampleID)
}

func TestParseCSV_NoValidRecords(t *testing.T) {
	_, err := ParseCSV("id,lat,lon\nonly,two\nnope,NaN,1")
	assert.ErrorIs(t, err, ErrNoValidRecords)
}

func TestParseJSON_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"object root", `{}`, ErrRootNotArray},
		{"number root", `42`, ErrRootNotArray},
		{"empty array", `[]`, ErrNoValidRecords},
		{"no surviving elements", `[{"sample_id":"A"}]`, ErrNoValidRecords},
		{"not json at all", `{]`, ErrMalformedFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseJSON_NullCoordinates(t *testing.T) {
	// A null coordinate is a missing coordinate, never (0,0).
	_, err := ParseJSON(`[{"sample_id": "A", "latitude": null, "longitude": null}]`)
	assert.ErrorIs(t, err, ErrNoValidRecords)

	// A null canonical name falls through to the short variant.
	records, err := ParseJSON(`[{"sample_id": "B", "latitude": null, "lat": 5, "longitude": null, "lon": 6}]`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5.0, records[0].Latitude)
	assert.Equal(t, 6.0, records[0].Longitude)
}

func TestParseJSON_NamingVariants(t *testing.T) {
	raw := `[
		{"sample_id": "A", "latitude": 28.6, "longitude": 77.2},
		{"id": "B", "lat": "19.07", "lon": "72.87", "capture_date": "2024-01-01"},
		{"sample_id": "C", "latitude": "not-a-number", "longitude": 1},
		{"latitude": 1, "longitude": 2}
	]`

	records, err := ParseJSON(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "A", records[0].SampleID)
	assert.Equal(t, "B", records[1].SampleID)
	assert.InDelta(t, 19.07, records[1].Latitude, 1e-9)
	assert.Equal(t, "2024-01-01", records[1].CaptureDate)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse("whatever", Format("xml"))
	assert.ErrorIs(t, err, ErrMalformedFile)
}
