package domain

// transitions is the full set of legal status moves. A document leaves
// processing exactly once per run; rejected is reachable from pending only via
// pre-flight input rejection, otherwise a human must route it through
// needs_review first.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:    {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusAutoValidated, StatusNeedsReview, StatusError},
	StatusNeedsReview: {
		StatusManuallyValidated,
		StatusRejected,
	},
	// auto_validated is terminal for the extraction pipeline; dataset assembly
	// reads it but never moves it.
	StatusAutoValidated:     {},
	StatusManuallyValidated: {},
	StatusRejected:          {},
	StatusError:             {},
}

// ValidTransition reports whether a document may move from one status to another.
func ValidTransition(from, to DocumentStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further pipeline transitions.
func Terminal(s DocumentStatus) bool {
	return len(transitions[s]) == 0
}

// CrossValidation carries what the orchestrator learned about one document
// after both cross-validated providers reached a terminal outcome.
type CrossValidation struct {
	// BaselineStructured / SecondaryStructured report whether each provider
	// produced a structured record.
	BaselineStructured  bool
	SecondaryStructured bool
	// Score is meaningful only when both providers produced structured output.
	Score     float64
	Threshold float64
}

// Comparable reports whether a match score exists for this document.
func (c CrossValidation) Comparable() bool {
	return c.BaselineStructured && c.SecondaryStructured
}

// Resolve decides the transition out of processing. A document auto-validates
// only when both providers agreed at or above the threshold; a single
// successful provider is not trusted on its own and the document errors out
// instead (conservative: no comparison means no confidence estimate).
func (c CrossValidation) Resolve() DocumentStatus {
	if !c.Comparable() {
		return StatusError
	}
	if c.Score >= c.Threshold {
		return StatusAutoValidated
	}
	return StatusNeedsReview
}
