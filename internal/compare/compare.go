// Package compare implements field-by-field cross-validation of two structured
// extraction records. Scores are deterministic: same inputs, same config, same
// score.
package compare

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
)

// Config fixes the parameters a score depends on. Instances should be built
// once at startup and shared.
type Config struct {
	// Fields is the ordered list of compared field names. The denominator of
	// every score is len(Fields).
	Fields []string
	// FuzzyThreshold is the minimum similarity ratio for a fuzzy match.
	FuzzyThreshold float64
	// FuzzyMinLen is the normalized length at least one value must exceed
	// before fuzzy matching applies. Short identifiers must match exactly.
	FuzzyMinLen int
}

// DefaultConfig returns the comparator parameters used in production.
func DefaultConfig(fields []string) Config {
	return Config{
		Fields:         fields,
		FuzzyThreshold: 0.85,
		FuzzyMinLen:    20,
	}
}

// Result is the outcome of comparing two records.
type Result struct {
	// Score is matched fields over total compared fields, in [0,1].
	Score float64 `json:"score"`
	// Matches counts the fields whose values matched.
	Matches int `json:"matches"`
	// Total is the fixed number of compared fields.
	Total int `json:"total"`
	// Discrepancies lists the mismatched field names in comparison order.
	Discrepancies []string `json:"discrepancies"`
}

// Normalize maps raw field values to canonical comparison form: lowercase,
// runs of whitespace collapsed to single spaces, trailing punctuation
// stripped. A value that normalizes to the empty string is treated as absent
// and returns ok=false.
func Normalize(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = trimFloat(t)
	case bool:
		s = fmt.Sprintf("%t", t)
	case json.Number:
		s = t.String()
	default:
		s = fmt.Sprintf("%v", t)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	// Stripping punctuation can expose trailing whitespace again, so trim both
	// until a fixed point; the result must be re-normalization stable.
	s = strings.TrimRight(s, ".,;: ")
	if s == "" {
		return "", false
	}
	return s, true
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// ValuesMatch reports whether two raw field values agree. Both absent is a
// match; one absent is not. Fuzzy matching applies when either normalized
// value is longer than the configured cutoff, so dates and document numbers
// never match approximately but a long address with a dropped character does.
func (c Config) ValuesMatch(a, b interface{}) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	if !okA && !okB {
		return true
	}
	if okA != okB {
		return false
	}
	if na == nb {
		return true
	}
	if len(na) > c.FuzzyMinLen || len(nb) > c.FuzzyMinLen {
		return levenshtein.Similarity(na, nb, nil) >= c.FuzzyThreshold
	}
	return false
}

// Compare scores two structured records over the configured field list.
// Fields absent from a record compare as null.
func (c Config) Compare(a, b map[string]interface{}) Result {
	res := Result{Total: len(c.Fields)}
	for _, f := range c.Fields {
		if c.ValuesMatch(a[f], b[f]) {
			res.Matches++
		} else {
			res.Discrepancies = append(res.Discrepancies, f)
		}
	}
	if res.Total > 0 {
		res.Score = float64(res.Matches) / float64(res.Total)
	}
	return res
}

// CompareJSON decodes two raw structured records and scores them.
func (c Config) CompareJSON(a, b json.RawMessage) (Result, error) {
	var ma, mb map[string]interface{}
	if err := json.Unmarshal(a, &ma); err != nil {
		return Result{}, fmt.Errorf("compare.CompareJSON: decode first record: %w", err)
	}
	if err := json.Unmarshal(b, &mb); err != nil {
		return Result{}, fmt.Errorf("compare.CompareJSON: decode second record: %w", err)
	}
	return c.Compare(ma, mb), nil
}
