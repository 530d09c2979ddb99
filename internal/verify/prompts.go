package verify

import "fmt"

// resultSchema is the strict output contract embedded in every prompt. The
// oracle must return only a JSON object of this exact shape.
const resultSchema = `{
  "sample_id": "",
  "qc_status": "VERIFIABLE" | "NOT_VERIFIABLE",
  "has_solar": true,
  "confidence": 0.95,

  "panel_count_est": 0,
  "capacity_kw_est": 0,
  "pv_area_sqm_est": 0,
  "panel_type_est": "",

  "latitude": 0,
  "longitude": 0,

  "image_metadata": {
    "source": "",
    "capture_date": ""
  },

  "qc_notes": [],

  "potential_panel_count_est": 0,
  "potential_capacity_kw_est": 0,
  "potential_pv_area_sqm_est": 0,
  "potential_placement_recommendation": "",
  "potential_panel_type_recommendation": ""
}`

// buildCoordinatePrompt creates the prompt for verifying a site by its
// coordinates using the oracle's knowledge of satellite imagery.
func buildCoordinatePrompt(sampleID string, latitude, longitude float64) string {
	return fmt.Sprintf(`You are a rooftop solar installation auditor. Analyze the following site for an existing solar installation.

Sample ID: %s
Latitude: %v
Longitude: %v

Determine whether rooftop solar panels are present at this location. If panels are present, estimate panel count, photovoltaic area in square meters, and capacity in kW, and identify the panel type. If no panels are present, instead estimate the site's potential: panel count, area, and capacity a future installation could support, with a placement and panel-type recommendation. If the location cannot be assessed at all, set qc_status to "NOT_VERIFIABLE" and explain why in qc_notes.

Return output in STRICT VALID JSON ONLY, with no surrounding text.
Use this structure:

%s`, sampleID, latitude, longitude, resultSchema)
}

// buildImagePrompt creates the prompt for verifying a single uploaded image.
// The image itself is attached to the request as an inline part.
func buildImagePrompt(sampleID string) string {
	return fmt.Sprintf(`You are a rooftop solar installation auditor. The attached image shows a rooftop or aerial view of a building.

Sample ID: %s

Determine whether solar panels are visible in the image. If panels are present, estimate panel count, photovoltaic area in square meters, and capacity in kW, and identify the panel type. If no panels are visible, estimate the roof's potential for a future installation. If the image is unusable (wrong subject, too blurry, obstructed), set qc_status to "NOT_VERIFIABLE" and explain why in qc_notes.

Return output in STRICT VALID JSON ONLY, with no surrounding text.
Use this structure:

%s`, sampleID, resultSchema)
}
