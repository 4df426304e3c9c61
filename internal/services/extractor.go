package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// TextExtractor converts an uploaded binary document into plain text.
// Dispatch is by file extension; the controller has already gated MIME type
// and size before the bytes reach this point.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the plain text of a PDF or DOCX document. Any other
// extension fails with ErrUnsupportedFormat; parser failures are wrapped in
// ExtractionError carrying the original cause. There is no retry: extraction
// is deterministic and a failure is permanent for that document.
func (te *TextExtractor) Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return te.extractPDF(data)
	case ".docx":
		return te.extractDOCX(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

// The pdf package panics on some malformed inputs instead of returning an
// error; the recover keeps a corrupt upload from taking the request down.
func (te *TextExtractor) extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExtractionError{Cause: fmt.Errorf("pdf parser failure: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Cause: err}
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", &ExtractionError{Cause: err}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", &ExtractionError{Cause: err}
	}

	return buf.String(), nil
}

func (te *TextExtractor) extractDOCX(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Cause: err}
	}

	var parts []string
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			parts = append(parts, block.String())
		case *docx.Table:
			parts = append(parts, block.String())
		}
	}

	return strings.Join(parts, "\n"), nil
}
