package ingest

import (
	"archive/zip"
	"bytes"
	"io"
)

var (
	pdfMagic       = []byte("%PDF")
	zipMagic       = []byte{0x50, 0x4b, 0x03, 0x04} // PK\x03\x04 — DOCX/XLSX are zip containers
	legacyDocMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
)

// sniffResult carries the mime type determined for an upload and the
// reader the rest of the pipeline should read from — header bytes
// rewound in front of whatever was consumed while sniffing.
type sniffResult struct {
	mimeType string
	body     io.Reader
}

// sniff determines a document's real MIME type from its leading bytes,
// never from a client-declared Content-Type. Plain ZIP magic bytes are
// ambiguous between DOCX/XLSX/a bare zip archive, so that case buffers
// the full stream and inspects the zip central directory for
// word/document.xml before accepting it as DOCX; every other case stays
// streaming (header rewound via io.MultiReader, nothing else buffered).
func sniff(header []byte, rest io.Reader, ext string) (sniffResult, bool, error) {
	switch {
	case bytes.HasPrefix(header, pdfMagic):
		return sniffResult{mimeType: "application/pdf", body: io.MultiReader(bytes.NewReader(header), rest)}, true, nil

	case bytes.HasPrefix(header, legacyDocMagic):
		return sniffResult{mimeType: "application/msword", body: io.MultiReader(bytes.NewReader(header), rest)}, true, nil

	case bytes.HasPrefix(header, zipMagic):
		full, err := io.ReadAll(io.MultiReader(bytes.NewReader(header), rest))
		if err != nil {
			return sniffResult{}, false, err
		}
		if !isDocx(full) {
			return sniffResult{}, false, nil
		}
		return sniffResult{
			mimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			body:     bytes.NewReader(full),
		}, true, nil
	}

	switch ext {
	case ".txt", ".md":
		return sniffResult{mimeType: "text/plain", body: io.MultiReader(bytes.NewReader(header), rest)}, true, nil
	}

	return sniffResult{}, false, nil
}

// isDocx opens content as a zip archive and looks for the part every
// Office Open XML word-processing document carries, so a bare ZIP
// upload (same magic bytes) is not silently accepted as a DOCX.
func isDocx(content []byte) bool {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return false
	}
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}
