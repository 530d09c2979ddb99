package batch

import "github.com/rooftophq/rooftop/internal/domain"

// Classification buckets one result for summary counting.
type Classification string

const (
	ClassVerified     Classification = "verified"
	ClassNotPresent   Classification = "not_present"
	ClassUnverifiable Classification = "unverifiable"
)

// Classify buckets a single result. QC status is checked before has_solar:
// an unanalyzable input is unverifiable regardless of what the has_solar
// flag happens to say.
func Classify(r domain.VerificationResult) Classification {
	switch {
	case r.QCStatus == domain.QCNotVerifiable:
		return ClassUnverifiable
	case r.HasSolar:
		return ClassVerified
	default:
		return ClassNotPresent
	}
}

// Summarize computes category counts over a result set. Pure; the three
// counts always partition Total.
func Summarize(results []domain.VerificationResult) domain.Summary {
	summary := domain.Summary{Total: len(results)}
	for _, r := range results {
		switch Classify(r) {
		case ClassVerified:
			summary.VerifiedCount++
		case ClassNotPresent:
			summary.NotPresentCount++
		case ClassUnverifiable:
			summary.UnverifiableCount++
		}
	}
	return summary
}
