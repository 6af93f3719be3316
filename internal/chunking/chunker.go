// Package chunking splits extracted document text into semantically
// bounded chunks sized for retrieval and embedding.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vaultline/core/internal/model"
)

// Chunker splits text on meaning boundaries (headers, then paragraphs,
// then sentences) into chunks sized between MinChars and MaxChars.
type Chunker struct {
	MinChars int
	MaxChars int
}

// New builds a Chunker with the given character-count bounds.
func New(minChars, maxChars int) *Chunker {
	if minChars <= 0 {
		minChars = 200
	}
	if maxChars <= minChars {
		maxChars = 2000
	}
	return &Chunker{MinChars: minChars, MaxChars: maxChars}
}

type block struct {
	content  string
	isHeader bool
	title    string
}

type segment struct {
	content      string
	sectionTitle string
	pageNumber   int
}

// Chunk splits text into model.Chunk values with deterministic,
// tenant-scoped IDs. documentID must already be assigned.
func (c *Chunker) Chunk(tenantID, documentID, text string) ([]model.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chunking.Chunk: text is empty")
	}

	blocks := splitBlocks(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("chunking.Chunk: no content after splitting")
	}

	segments := c.buildSegments(blocks)
	segments = c.mergeShortSegments(segments)
	segments = c.splitLongSegments(segments)

	chunks := make([]model.Chunk, 0, len(segments))
	index := 0
	for _, seg := range segments {
		content := strings.TrimSpace(seg.content)
		if content == "" {
			continue
		}
		page := seg.pageNumber
		chunks = append(chunks, model.Chunk{
			ID:         ChunkID(tenantID, documentID, index),
			TenantID:   tenantID,
			DocumentID: documentID,
			Index:      index,
			Content:    content,
			CharCount:  len(content),
			PageNumber: &page,
		})
		index++
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking.Chunk: no non-empty chunks produced")
	}
	return chunks, nil
}

// ChunkID deterministically derives a chunk's ID from its tenant, document
// and position, so re-chunking the same document reproduces the same IDs
// instead of minting new ones on every re-ingestion.
func ChunkID(tenantID, documentID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", tenantID, documentID, index)))
	return hex.EncodeToString(h[:])[:32]
}

// buildSegments merges blocks up to MaxChars. Headers always force a new
// segment boundary; oversized paragraphs are deferred to splitLongSegments.
func (c *Chunker) buildSegments(blocks []block) []segment {
	var segments []segment
	var current strings.Builder
	currentSection := ""
	currentPage := 1
	pageBreaks := 0

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, segment{
				content:      current.String(),
				sectionTitle: currentSection,
				pageNumber:   currentPage,
			})
			current.Reset()
			currentPage = 1 + pageBreaks
		}
	}

	for _, blk := range blocks {
		if strings.Contains(blk.content, "\f") {
			pageBreaks++
		}

		if blk.isHeader {
			flush()
			currentSection = blk.title
			current.WriteString(blk.content)
			continue
		}

		if current.Len() > 0 && current.Len()+len(blk.content)+2 > c.MaxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(blk.content)
	}
	flush()

	return segments
}

// mergeShortSegments folds a segment under MinChars into its successor, so
// a lone trailing sentence doesn't become its own chunk.
func (c *Chunker) mergeShortSegments(segments []segment) []segment {
	if len(segments) <= 1 {
		return segments
	}

	merged := make([]segment, 0, len(segments))
	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		for len(seg.content) < c.MinChars && i+1 < len(segments) &&
			len(seg.content)+len(segments[i+1].content)+2 <= c.MaxChars {
			i++
			seg.content = seg.content + "\n\n" + segments[i].content
		}
		merged = append(merged, seg)
	}
	return merged
}

// splitLongSegments breaks any segment still over MaxChars at sentence
// boundaries, falling back to a word-count split for a single run-on
// sentence with no boundary to break at.
func (c *Chunker) splitLongSegments(segments []segment) []segment {
	var result []segment
	for _, seg := range segments {
		if len(seg.content) <= c.MaxChars {
			result = append(result, seg)
			continue
		}
		for _, part := range splitAtSentences(seg.content, c.MaxChars) {
			result = append(result, segment{
				content:      part,
				sectionTitle: seg.sectionTitle,
				pageNumber:   seg.pageNumber,
			})
		}
	}
	return result
}

// splitBlocks splits text on blank lines, classifying each block as a
// markdown-style header or a paragraph.
func splitBlocks(text string) []block {
	raw := strings.Split(text, "\n\n")
	var blocks []block
	for _, p := range raw {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if title := headerTitle(trimmed); title != "" {
			blocks = append(blocks, block{content: trimmed, isHeader: true, title: title})
		} else {
			blocks = append(blocks, block{content: trimmed})
		}
	}
	return blocks
}

func headerTitle(para string) string {
	if !strings.HasPrefix(para, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(para, "# "))
}

// splitAtSentences splits text into pieces no longer than maxChars,
// breaking on ". "/"! "/"? " boundaries, and falling back to a word split
// if a single sentence already exceeds maxChars.
func splitAtSentences(text string, maxChars int) []string {
	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder

	for _, sent := range sentences {
		if len(sent) > maxChars {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, splitByWords(sent, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(sent)+1 > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	if len(chunks) == 0 && len(text) > 0 {
		chunks = splitByWords(text, maxChars)
	}
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}
	return sentences
}

func splitByWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	for _, w := range words {
		if current.Len() > 0 && current.Len()+len(w)+1 > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
