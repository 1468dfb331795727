package chunk_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/chunk"
	"github.com/m-mizutani/kioku/pkg/model"
)

func TestNewValidation(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 10, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 200, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := chunk.New(tc.size, tc.overlap)
			if tc.wantErr {
				gt.Error(t, err)
				gt.True(t, goerr.HasTag(err, model.ErrTagInput))
			} else {
				gt.NoError(t, err)
				gt.V(t, s).NotNil()
			}
		})
	}
}

func TestSplitShortTextYieldsSingleChunk(t *testing.T) {
	s := gt.R1(chunk.New(100, 10)).NoError(t)

	chunks := gt.R1(s.Split("a short memory")).NoError(t)
	gt.A(t, chunks).Length(1)
	gt.Equal(t, chunks[0], "a short memory")
}

func TestSplitExactBoundary(t *testing.T) {
	s := gt.R1(chunk.New(10, 2)).NoError(t)

	text := strings.Repeat("x", 10)
	chunks := gt.R1(s.Split(text)).NoError(t)
	gt.A(t, chunks).Length(1)
	gt.Equal(t, chunks[0], text)
}

func TestSplitEmptyText(t *testing.T) {
	s := gt.R1(chunk.New(100, 10)).NoError(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Split(text)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrEmptyMemory))
		gt.True(t, goerr.HasTag(err, model.ErrTagInput))
	}
}

func TestSplitWindowSizes(t *testing.T) {
	s := gt.R1(chunk.New(10, 3)).NoError(t)

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := gt.R1(s.Split(text)).NoError(t)

	gt.Equal(t, chunks, []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"})
	for _, c := range chunks {
		gt.N(t, len([]rune(c))).LessOrEqual(10)
	}
}

func TestSplitOverlapPreservesBoundaryContext(t *testing.T) {
	s := gt.R1(chunk.New(10, 3)).NoError(t)

	chunks := gt.R1(s.Split("abcdefghijklmnopqrstuvwxyz")).NoError(t)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		gt.Equal(t, string(prev[len(prev)-3:]), string(cur[:3]))
	}
}

func TestSplitRoundTrip(t *testing.T) {
	texts := []string{
		strings.Repeat("the quick brown fox jumps over the lazy dog ", 50),
		strings.Repeat("日本語のテキストもルーン単位で分割される。", 40),
		strings.Repeat("x", 1001),
	}

	configs := []struct{ size, overlap int }{
		{10, 0}, {10, 3}, {100, 50}, {1000, 100},
	}

	for _, cfg := range configs {
		s := gt.R1(chunk.New(cfg.size, cfg.overlap)).NoError(t)
		for _, text := range texts {
			chunks := gt.R1(s.Split(text)).NoError(t)
			gt.Equal(t, s.Reassemble(chunks), text)
		}
	}
}

func TestSplitDeterminism(t *testing.T) {
	s := gt.R1(chunk.New(17, 5)).NoError(t)

	text := strings.Repeat("determinism matters for chunk identity ", 20)
	first := gt.R1(s.Split(text)).NoError(t)
	second := gt.R1(s.Split(text)).NoError(t)
	gt.Equal(t, first, second)
}

func TestSplitMultiByteRunesNotBroken(t *testing.T) {
	s := gt.R1(chunk.New(5, 1)).NoError(t)

	chunks := gt.R1(s.Split("こんにちは世界、記憶を保存する")).NoError(t)
	var total int
	for _, c := range chunks {
		gt.True(t, utf8Valid(c))
		total += len([]rune(c))
	}
	gt.N(t, total).Greater(0)
}

func utf8Valid(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
