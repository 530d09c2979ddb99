// Package domain contains core business types for rooftop solar verification.
package domain

import (
	"fmt"
	"math"
)

// SiteRecord is one candidate location to verify. Records are created by the
// ingest parser and never mutated afterwards.
type SiteRecord struct {
	SampleID    string  `json:"sample_id" validate:"required"`
	Latitude    float64 `json:"latitude" validate:"latitude"`
	Longitude   float64 `json:"longitude" validate:"longitude"`
	CaptureDate string  `json:"capture_date,omitempty"` // free-form, treated as opaque
}

// Validate checks that the record carries usable coordinates.
func (s SiteRecord) Validate() error {
	if s.SampleID == "" {
		return Invalid("site.validate", "sample_id is required")
	}
	if !ValidCoordinates(s.Latitude, s.Longitude) {
		return Invalid("site.validate",
			fmt.Sprintf("coordinates out of range: %v, %v", s.Latitude, s.Longitude))
	}
	return nil
}

// ValidCoordinates reports whether lat/lon are finite and within
// [-90,90] / [-180,180].
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// SupportedImageTypes is the MIME allow-list for single-image verification.
var SupportedImageTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/webp": "WebP",
}

// ImagePayload is the input unit for single-image verification. It is
// consumed once by the verification client and not persisted.
type ImagePayload struct {
	Bytes    []byte
	MimeType string
}

// Validate checks the payload is non-empty and the MIME type is allowed.
func (p ImagePayload) Validate() error {
	if len(p.Bytes) == 0 {
		return Invalid("image.validate", "image payload is empty")
	}
	if _, ok := SupportedImageTypes[p.MimeType]; !ok {
		return Invalid("image.validate", fmt.Sprintf("unsupported image type %q", p.MimeType))
	}
	return nil
}
