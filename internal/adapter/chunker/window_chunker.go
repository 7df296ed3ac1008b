package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

// WindowChunker cuts a document into fixed-size character windows that
// share up to overlap characters with their predecessor. A window end is
// pulled back to the last whitespace in its second half so words stay whole.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d", domain.ErrBadConfig, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk splits content. Offsets are rune offsets; whitespace-only windows
// are skipped without consuming a sequence number.
func (c *WindowChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	runes := []rune(content)
	n := len(runes)

	var chunks []domain.Chunk
	start := 0

	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.snap(runes, start, end)
		}

		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:    generateChunkID(doc.ID, start, end),
				DocID: doc.ID,
				Seq:   len(chunks),
				Start: start,
				End:   end,
				Text:  text,
			})
		}

		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

func (c *WindowChunker) snap(runes []rune, start, end int) int {
	floor := start + c.size/2
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func generateChunkID(docID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
