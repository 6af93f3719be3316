package extraction

import (
	"context"
	"fmt"
	"io"
)

// plainTextMimeTypes are the mime types the native extractor can read
// directly, without any document structure to strip away. Anything else
// (PDF, DOCX, images) has no native text layer this platform can read on
// its own and falls through to managed OCR.
var plainTextMimeTypes = map[string]bool{
	"text/plain":    true,
	"text/markdown": true,
}

// PlainTextExtractor reads UTF-8 text bodies verbatim.
type PlainTextExtractor struct{}

// Extract implements NativeExtractor.
func (PlainTextExtractor) Extract(ctx context.Context, r io.Reader, mimeType string) (Result, bool, error) {
	if !plainTextMimeTypes[mimeType] {
		return Result{}, false, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, false, fmt.Errorf("extraction.PlainTextExtractor: %w", err)
	}

	return Result{Text: string(data), Pages: 1}, true, nil
}
