package domain

import (
	"sync/atomic"
	"time"
)

// BatchRun tracks one orchestrator execution over a queue of pending documents.
// Counters use atomic increments because documents complete out of submission
// order on separate goroutines.
type BatchRun struct {
	startedAt time.Time

	total         atomic.Int64
	processed     atomic.Int64
	autoValidated atomic.Int64
	needsReview   atomic.Int64
	errored       atomic.Int64

	inProgress atomic.Bool
}

// NewBatchRun starts a run over the given number of claimed documents.
func NewBatchRun(total int) *BatchRun {
	r := &BatchRun{startedAt: time.Now().UTC()}
	r.total.Store(int64(total))
	r.inProgress.Store(true)
	return r
}

// AddClaimed grows the run's total when documents are claimed incrementally.
func (r *BatchRun) AddClaimed(n int) {
	r.total.Add(int64(n))
}

// Record counts one completed document by its terminal status.
func (r *BatchRun) Record(status DocumentStatus) {
	r.processed.Add(1)
	switch status {
	case StatusAutoValidated:
		r.autoValidated.Add(1)
	case StatusNeedsReview:
		r.needsReview.Add(1)
	case StatusError:
		r.errored.Add(1)
	}
}

// Finish marks the run complete.
func (r *BatchRun) Finish() {
	r.inProgress.Store(false)
}

// InProgress reports whether the run is still draining its queue.
func (r *BatchRun) InProgress() bool {
	return r.inProgress.Load()
}

// BatchSummary is a point-in-time snapshot of a run's counters.
type BatchSummary struct {
	Total         int           `json:"total"`
	Processed     int           `json:"processed"`
	AutoValidated int           `json:"auto_validated"`
	NeedsReview   int           `json:"needs_review"`
	Errored       int           `json:"errored"`
	InProgress    bool          `json:"in_progress"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Snapshot returns the run's current counters. Safe to call concurrently with
// Record; values are individually consistent, not a transactional view.
func (r *BatchRun) Snapshot() BatchSummary {
	return BatchSummary{
		Total:         int(r.total.Load()),
		Processed:     int(r.processed.Load()),
		AutoValidated: int(r.autoValidated.Load()),
		NeedsReview:   int(r.needsReview.Load()),
		Errored:       int(r.errored.Load()),
		InProgress:    r.inProgress.Load(),
		Elapsed:       time.Since(r.startedAt),
	}
}
