package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to DocumentStatus }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusRejected},
		{StatusProcessing, StatusAutoValidated},
		{StatusProcessing, StatusNeedsReview},
		{StatusProcessing, StatusError},
		{StatusNeedsReview, StatusManuallyValidated},
		{StatusNeedsReview, StatusRejected},
	}
	for _, tr := range allowed {
		assert.True(t, ValidTransition(tr.from, tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}

	denied := []struct{ from, to DocumentStatus }{
		{StatusPending, StatusAutoValidated},
		{StatusPending, StatusNeedsReview},
		{StatusProcessing, StatusRejected},
		{StatusProcessing, StatusManuallyValidated},
		{StatusAutoValidated, StatusNeedsReview},
		{StatusManuallyValidated, StatusPending},
		{StatusRejected, StatusPending},
		{StatusError, StatusProcessing},
		{StatusNeedsReview, StatusAutoValidated},
	}
	for _, tr := range denied {
		assert.False(t, ValidTransition(tr.from, tr.to), "%s -> %s should be denied", tr.from, tr.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(StatusAutoValidated))
	assert.True(t, Terminal(StatusManuallyValidated))
	assert.True(t, Terminal(StatusRejected))
	assert.True(t, Terminal(StatusError))
	assert.False(t, Terminal(StatusPending))
	assert.False(t, Terminal(StatusProcessing))
	assert.False(t, Terminal(StatusNeedsReview))
}

func TestCrossValidationResolve(t *testing.T) {
	tests := []struct {
		name string
		cv   CrossValidation
		want DocumentStatus
	}{
		{
			"both structured above threshold",
			CrossValidation{BaselineStructured: true, SecondaryStructured: true, Score: 1.0, Threshold: 0.95},
			StatusAutoValidated,
		},
		{
			"threshold is inclusive",
			CrossValidation{BaselineStructured: true, SecondaryStructured: true, Score: 0.95, Threshold: 0.95},
			StatusAutoValidated,
		},
		{
			"just under threshold",
			CrossValidation{BaselineStructured: true, SecondaryStructured: true, Score: 0.9499, Threshold: 0.95},
			StatusNeedsReview,
		},
		{
			"baseline missing",
			CrossValidation{BaselineStructured: false, SecondaryStructured: true, Score: 1.0, Threshold: 0.95},
			StatusError,
		},
		{
			"secondary missing",
			CrossValidation{BaselineStructured: true, SecondaryStructured: false, Threshold: 0.95},
			StatusError,
		},
		{
			"both missing",
			CrossValidation{Threshold: 0.95},
			StatusError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cv.Resolve())
		})
	}
}

func TestBatchRunCounters(t *testing.T) {
	run := NewBatchRun(0)
	run.AddClaimed(4)

	run.Record(StatusAutoValidated)
	run.Record(StatusAutoValidated)
	run.Record(StatusNeedsReview)
	run.Record(StatusError)

	s := run.Snapshot()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 2, s.AutoValidated)
	assert.Equal(t, 1, s.NeedsReview)
	assert.Equal(t, 1, s.Errored)
	assert.True(t, s.InProgress)

	run.Finish()
	assert.False(t, run.Snapshot().InProgress)
}
