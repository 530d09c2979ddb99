package domain

// QCStatus classifies whether an input was analyzable at all, independent of
// the has-solar determination.
type QCStatus string

const (
	// QCVerifiable indicates the oracle judged the input analyzable.
	QCVerifiable QCStatus = "VERIFIABLE"

	// QCNotVerifiable indicates the input could not be analyzed.
	QCNotVerifiable QCStatus = "NOT_VERIFIABLE"
)

// String returns the string representation of the status.
func (s QCStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s QCStatus) IsValid() bool {
	return s == QCVerifiable || s == QCNotVerifiable
}

// ImageMetadata records the provenance of the imagery behind a result.
// Always populated, even on degraded results.
type ImageMetadata struct {
	Source      string `json:"source"`
	CaptureDate string `json:"capture_date"`
}

// VerificationResult is the outcome of verifying one site record or image.
//
// The present-system estimates (PanelCountEst, AreaSqmEst, CapacityKwEst) and
// the potential estimates are mutually exclusive: whichever branch does not
// match HasSolar is forced to zero. EnforceConsistency applies that rule.
type VerificationResult struct {
	SampleID   string   `json:"sample_id"`
	QCStatus   QCStatus `json:"qc_status"`
	HasSolar   bool     `json:"has_solar"`
	Confidence float64  `json:"confidence"`

	// Estimates for a detected installation.
	PanelCountEst float64 `json:"panel_count_est"`
	AreaSqmEst    float64 `json:"pv_area_sqm_est"`
	CapacityKwEst float64 `json:"capacity_kw_est"`
	PanelTypeEst  string  `json:"panel_type_est,omitempty"`

	// Estimates for a hypothetical future installation where none exists.
	PotentialPanelCountEst  float64 `json:"potential_panel_count_est"`
	PotentialAreaSqmEst     float64 `json:"potential_pv_area_sqm_est"`
	PotentialCapacityKwEst  float64 `json:"potential_capacity_kw_est"`
	PlacementRecommendation string  `json:"potential_placement_recommendation,omitempty"`
	PanelTypeRecommendation string  `json:"potential_panel_type_recommendation,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	QCNotes       []string      `json:"qc_notes"`
	ImageMetadata ImageMetadata `json:"image_metadata"`
}

// EnforceConsistency makes the two estimate branches mutually exclusive,
// regardless of what the oracle returned, and clamps confidence to [0,1].
func (r *VerificationResult) EnforceConsistency() {
	if r.HasSolar {
		r.PotentialPanelCountEst = 0
		r.PotentialAreaSqmEst = 0
		r.PotentialCapacityKwEst = 0
		r.PlacementRecommendation = ""
		r.PanelTypeRecommendation = ""
	} else {
		r.PanelCountEst = 0
		r.AreaSqmEst = 0
		r.CapacityKwEst = 0
		r.PanelTypeEst = ""
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if !r.QCStatus.IsValid() {
		r.QCStatus = QCNotVerifiable
	}
}

// Summary holds counts by classification over a result set. The three
// category counts always partition Total.
type Summary struct {
	Total             int `json:"total"`
	VerifiedCount     int `json:"verified_count"`
	NotPresentCount   int `json:"not_present_count"`
	UnverifiableCount int `json:"unverifiable_count"`
}
