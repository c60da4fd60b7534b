// Package pdf trims scanned PDFs down to their first page before model
// analysis. School letters put everything that matters on page one, and a
// single page keeps vision-model token usage flat regardless of how many
// pages the scanner stapled together.
package pdf

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Converter implements service.Converter with pdfcpu.
type Converter struct {
	logger *slog.Logger
}

// NewConverter creates a Converter.
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{logger: logger}
}

// FirstPage returns a single-page PDF holding only the first page of the
// input. Non-PDF data and single-page documents pass through unchanged.
func (c *Converter) FirstPage(data []byte, mimeType string) ([]byte, string, error) {
	if mimeType != "application/pdf" {
		return data, mimeType, nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read pdf structure: %w", err)
	}
	if count <= 1 {
		return data, mimeType, nil
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{"1"}, nil); err != nil {
		return nil, "", fmt.Errorf("failed to extract first page: %w", err)
	}

	c.logger.Debug("trimmed pdf to first page", "pages", count, "bytes", out.Len())
	return out.Bytes(), mimeType, nil
}
