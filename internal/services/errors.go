package services

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned before any parsing when the uploaded
// document is neither a PDF nor a DOCX file.
var ErrUnsupportedFormat = errors.New("unsupported file format: only PDF and DOCX are supported")

// ErrStorageUnavailable is returned on history reads when the database is
// not connected. Writes never surface it; they log and drop.
var ErrStorageUnavailable = errors.New("history storage unavailable")

// ExtractionError wraps an underlying parser failure (corrupt file,
// password-protected document, ...). Extraction is local and deterministic,
// so the failure is permanent for that document.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("text extraction failed: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// ExecutionError reports a test run that produced no usable result: subprocess
// failure, timeout, or unparseable reporter output. Detail carries the
// diagnostic text (stderr or parse error) for the API response.
type ExecutionError struct {
	Msg    string
	Detail string
}

func (e *ExecutionError) Error() string {
	if e.Detail == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Detail)
}
