// Package chunk splits memory text into bounded-size windows for embedding.
//
// The unit of measurement is the rune, not the byte, so multi-byte text never
// gets split mid-character. Splitting is deterministic: the same input and
// configuration always produce the same sequence.
package chunk

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// Splitter produces consecutive windows of at most Size runes. Each window
// after the first starts Overlap runes before the end of the previous one so
// boundary context is preserved.
type Splitter struct {
	Size    int
	Overlap int
}

// New validates the configuration and returns a Splitter.
// Size must be positive and Overlap must satisfy 0 <= Overlap < Size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, goerr.New("chunk size must be positive",
			goerr.T(model.ErrTagInput), goerr.V("size", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, goerr.New("chunk overlap must be in [0, size)",
			goerr.T(model.ErrTagInput),
			goerr.V("size", size), goerr.V("overlap", overlap))
	}
	return &Splitter{Size: size, Overlap: overlap}, nil
}

// Split returns the chunk texts for the given memory text. Text no longer
// than Size yields exactly one chunk equal to the text. Empty or whitespace
// only text is an error rather than a degenerate entry.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrEmptyMemory, "cannot chunk text")
	}

	runes := []rune(text)
	if len(runes) <= s.Size {
		return []string{text}, nil
	}

	step := s.Size - s.Overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks, nil
}

// Reassemble concatenates the non-overlapping portions of chunks produced by
// Split, reconstructing the original text. Used for snapshot verification.
func (s *Splitter) Reassemble(chunks []string) string {
	var sb strings.Builder
	for i, c := range chunks {
		runes := []rune(c)
		if i == 0 {
			sb.WriteString(c)
			continue
		}
		if len(runes) > s.Overlap {
			sb.WriteString(string(runes[s.Overlap:]))
		}
	}
	return sb.String()
}
