package batch

import (
	"testing"

	"github.com/rooftophq/rooftop/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify_QCStatusCheckedFirst(t *testing.T) {
	// A NOT_VERIFIABLE result is unverifiable even when has_solar is true.
	r := domain.VerificationResult{QCStatus: domain.QCNotVerifiable, HasSolar: true}
	assert.Equal(t, ClassUnverifiable, Classify(r))

	r = domain.VerificationResult{QCStatus: domain.QCVerifiable, HasSolar: true}
	assert.Equal(t, ClassVerified, Classify(r))

	r = domain.VerificationResult{QCStatus: domain.QCVerifiable, HasSolar: false}
	assert.Equal(t, ClassNotPresent, Classify(r))
}

func TestSummarize_PartitionsTotal(t *testing.T) {
	results := []domain.VerificationResult{
		{QCStatus: domain.QCVerifiable, HasSolar: true},
		{QCStatus: domain.QCVerifiable, HasSolar: false},
		{QCStatus: domain.QCNotVerifiable, HasSolar: true},
		{QCStatus: domain.QCNotVerifiable, HasSolar: false},
		{QCStatus: domain.QCVerifiable, HasSolar: true},
	}

	s := Summarize(results)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.VerifiedCount)
	assert.Equal(t, 1, s.NotPresentCount)
	assert.Equal(t, 2, s.UnverifiableCount)
	assert.Equal(t, s.Total, s.VerifiedCount+s.NotPresentCount+s.UnverifiableCount)

	// Pure function: re-running yields the same summary.
	assert.Equal(t, s, Summarize(results))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, domain.Summary{}, s)
}
