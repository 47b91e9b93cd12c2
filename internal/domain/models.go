package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document represents one scanned DDT file moving through extraction and validation.
// The per-provider caches are independently nullable: nil means the provider has not
// run (or failed), never "ran and produced nothing".
type Document struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Filename      string    `db:"filename" json:"filename"`
	S3Bucket      string    `db:"s3_bucket" json:"-"`
	S3Key         string    `db:"s3_key" json:"s3_key"`
	FileSizeBytes int64     `db:"file_size_bytes" json:"file_size_bytes"`

	// Datalab pipeline (submit/poll OCR + structured extraction)
	DatalabRawOCR *string         `db:"datalab_raw_ocr" json:"datalab_raw_ocr"`
	DatalabJSON   json.RawMessage `db:"datalab_json" json:"datalab_json"`
	DatalabTimeMS *int64          `db:"datalab_time_ms" json:"datalab_time_ms"`
	DatalabError  *string         `db:"datalab_error" json:"datalab_error"`

	// Azure + Gemini pipeline (one-shot OCR, then structuring)
	AzureRawOCR  *string         `db:"azure_raw_ocr" json:"azure_raw_ocr"`
	AzureTimeMS  *int64          `db:"azure_time_ms" json:"azure_time_ms"`
	AzureError   *string         `db:"azure_error" json:"azure_error"`
	GeminiJSON   json.RawMessage `db:"gemini_json" json:"gemini_json"`
	GeminiTimeMS *int64          `db:"gemini_time_ms" json:"gemini_time_ms"`
	GeminiError  *string         `db:"gemini_error" json:"gemini_error"`

	// Cross-validation. MatchScore is non-nil iff both providers produced
	// structured output.
	MatchScore    *float64   `db:"match_score" json:"match_score"`
	Discrepancies StringList `db:"discrepancies" json:"discrepancies"`

	Status       DocumentStatus `db:"status" json:"status"`
	ErrorClass   *ErrorClass    `db:"error_class" json:"error_class"`
	ErrorMessage *string        `db:"error_message" json:"error_message"`

	// ValidatedOutput is non-nil iff status is auto_validated or manually_validated.
	ValidatedOutput  json.RawMessage   `db:"validated_output" json:"validated_output"`
	ValidationSource *ValidationSource `db:"validation_source" json:"validation_source"`
	ValidatorNotes   string            `db:"validator_notes" json:"validator_notes"`

	DatasetSplit *DatasetSplit `db:"dataset_split" json:"dataset_split"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StringList is a JSONB-backed ordered list of field names.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// ExtractionOutcome is the immutable result of one provider invocation for one
// document: either structured data and/or raw text, or an error classification.
// Elapsed is populated on success and failure alike.
type ExtractionOutcome struct {
	Provider       string
	StructuredData json.RawMessage
	RawText        string
	Elapsed        time.Duration
	ErrorClass     ErrorClass
	ErrorMessage   string
}

// Succeeded reports whether the invocation completed without a classified error.
func (o *ExtractionOutcome) Succeeded() bool {
	return o != nil && o.ErrorClass == ""
}

// Structured reports whether the invocation produced a structured record.
func (o *ExtractionOutcome) Structured() bool {
	return o.Succeeded() && len(o.StructuredData) > 0
}

// ElapsedMS returns the elapsed time in milliseconds, for persistence.
func (o *ExtractionOutcome) ElapsedMS() int64 {
	return o.Elapsed.Milliseconds()
}

// SuccessOutcome builds an outcome for a completed invocation.
func SuccessOutcome(provider string, structured json.RawMessage, rawText string, elapsed time.Duration) *ExtractionOutcome {
	return &ExtractionOutcome{
		Provider:       provider,
		StructuredData: structured,
		RawText:        rawText,
		Elapsed:        elapsed,
	}
}

// FailureOutcome builds an outcome carrying an error classification.
func FailureOutcome(provider string, class ErrorClass, message string, elapsed time.Duration) *ExtractionOutcome {
	return &ExtractionOutcome{
		Provider:     provider,
		Elapsed:      elapsed,
		ErrorClass:   class,
		ErrorMessage: message,
	}
}

// ExtractionProfile is a named, immutable bundle of prompt, output schema, and
// model parameters that providers are parameterized with. Referencing the same
// profile keeps results reproducible across runs.
type ExtractionProfile struct {
	Name            string
	Prompt          string
	SchemaJSON      string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// ProcessingStats is the single-row aggregate persisted alongside batch runs.
type ProcessingStats struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	TotalSamples          int       `db:"total_samples" json:"total_samples"`
	Processed             int       `db:"processed" json:"processed"`
	AutoValidated         int       `db:"auto_validated" json:"auto_validated"`
	NeedsReview           int       `db:"needs_review" json:"needs_review"`
	ManuallyValidated     int       `db:"manually_validated" json:"manually_validated"`
	Rejected              int       `db:"rejected" json:"rejected"`
	Errors                int       `db:"errors" json:"errors"`
	AvgMatchScore         *float64  `db:"avg_match_score" json:"avg_match_score"`
	TotalProcessingTimeMS int64     `db:"total_processing_time_ms" json:"total_processing_time_ms"`
	IsProcessing          bool      `db:"is_processing" json:"is_processing"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// ProgressPercent returns processing progress in [0,100].
func (s *ProcessingStats) ProgressPercent() float64 {
	if s.TotalSamples == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.TotalSamples) * 100
}

// StatsDelta is an additive update applied to ProcessingStats counters.
type StatsDelta struct {
	TotalSamples      int
	Processed         int
	AutoValidated     int
	NeedsReview       int
	ManuallyValidated int
	Rejected          int
	Errors            int
	ProcessingTimeMS  int64
}
