package domain

// DocumentStatus represents where a document sits in the extraction-validation pipeline.
type DocumentStatus string

const (
	StatusPending           DocumentStatus = "pending"
	StatusProcessing        DocumentStatus = "processing"
	StatusAutoValidated     DocumentStatus = "auto_validated"
	StatusNeedsReview       DocumentStatus = "needs_review"
	StatusManuallyValidated DocumentStatus = "manually_validated"
	StatusRejected          DocumentStatus = "rejected"
	StatusError             DocumentStatus = "error"
)

// Valid reports whether s is one of the known pipeline states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusAutoValidated,
		StatusNeedsReview, StatusManuallyValidated, StatusRejected, StatusError:
		return true
	}
	return false
}

// ValidationSource identifies where a document's validated output came from.
type ValidationSource string

const (
	SourceDatalab ValidationSource = "datalab"
	SourceGemini  ValidationSource = "gemini"
	SourceManual  ValidationSource = "manual"
)

// DatasetSplit assigns a validated document to the training or validation set.
type DatasetSplit string

const (
	SplitTrain      DatasetSplit = "train"
	SplitValidation DatasetSplit = "validation"
)

// Provider names used across outcomes, config, and the baseline policy.
const (
	ProviderDatalab = "datalab"
	ProviderAzure   = "azure"
	ProviderGemini  = "gemini"
)

// ErrorClass classifies why an extraction attempt failed.
type ErrorClass string

const (
	ErrClassTimeout            ErrorClass = "timeout"
	ErrClassRateLimitExhausted ErrorClass = "rate_limit_exhausted"
	ErrClassTransientNetwork   ErrorClass = "transient_network"
	ErrClassInvalidOutput      ErrorClass = "invalid_output"
	ErrClassProviderRefusal    ErrorClass = "provider_refusal"
	ErrClassInputRejected      ErrorClass = "input_rejected"
)

// FileType represents the allowed file types for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedContentTypes maps MIME content types back to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"image/jpeg":      FileTypeJPG,
	"image/png":       FileTypePNG,
}
