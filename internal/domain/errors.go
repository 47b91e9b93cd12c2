package domain

import "errors"

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrUnsupportedFileType   = errors.New("unsupported file type")
	ErrFileTooLarge          = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed          = errors.New("file upload to storage failed")
	ErrInvalidTransition     = errors.New("invalid document status transition")
	ErrInvalidValidatedData  = errors.New("validated output does not conform to the extraction schema")
	ErrBatchAlreadyRunning   = errors.New("a batch run is already in progress")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNoValidatedDocuments  = errors.New("no validated documents available for export")
)
