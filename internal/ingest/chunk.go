package ingest

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// maxDocumentBytes bounds how much of a source file is read (16 MB).
const maxDocumentBytes = 16 << 20

// extractText reads the full document and normalizes it to plain UTF-8 text.
// Only one source format is supported: text. Line endings are normalized and
// NUL bytes stripped so chunk boundaries never split a control sequence.
func extractText(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	if len(raw) > maxDocumentBytes {
		return "", fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}

	text := string(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text), nil
}

// splitChunks slices text into consecutive non-overlapping chunks of at most
// size runes. Chunk boundaries respect rune boundaries; multi-byte characters
// are never split.
func splitChunks(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// partition splits chunks into at most batchCount contiguous groups of
// near-equal size. Fewer chunks than batches yields one batch per chunk.
func partition(chunks []string, batchCount int) [][]string {
	if len(chunks) == 0 {
		return nil
	}
	if batchCount > len(chunks) {
		batchCount = len(chunks)
	}
	if batchCount < 1 {
		batchCount = 1
	}

	batches := make([][]string, 0, batchCount)
	per := len(chunks) / batchCount
	extra := len(chunks) % batchCount

	start := 0
	for i := 0; i < batchCount; i++ {
		n := per
		if i < extra {
			n++
		}
		batches = append(batches, chunks[start:start+n])
		start += n
	}
	return batches
}
