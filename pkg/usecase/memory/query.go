package memory

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

//go:embed prompt/answer.md
var answerSystemPrompt string

// QueryInput contains parameters for a single query
type QueryInput struct {
	Question string
	Raw      bool
	Limit    int // 0 means the configured top-k default
}

// QueryOutput is the result of a query. Results is always populated with the
// ranked hits; Answer is set only for synthesized queries. Degraded reports
// that synthesis was requested but the completion capability failed, in
// which case Warning explains the fallback.
type QueryOutput struct {
	Answer   string
	Results  []*model.SearchResult
	Degraded bool
	Warning  string
}

// Query embeds the question, retrieves the most similar chunks and, unless
// raw mode is requested, synthesizes a natural-language answer from them.
// Completion failure degrades to raw results instead of failing the query.
func (u *UseCase) Query(ctx context.Context, input QueryInput) (*QueryOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, goerr.New("empty query", goerr.T(model.ErrTagInput))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = u.topK
	}

	vec, err := u.embedder.Embed(ctx, input.Question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	results, err := u.repo.Search(ctx, vec, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories")
	}

	out := &QueryOutput{Results: results}
	if input.Raw {
		return out, nil
	}

	if u.completer == nil {
		out.Degraded = true
		out.Warning = "no completion capability configured; showing raw results"
		return out, nil
	}

	prompt := u.buildPrompt(input.Question, results)
	answer, err := u.completer.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		// Degrade gracefully: the retrieval already succeeded, so return
		// the raw hits with a warning instead of failing the whole query.
		logging.From(ctx).Warn("answer synthesis failed, falling back to raw results",
			"error", err)
		out.Degraded = true
		out.Warning = fmt.Sprintf("answer synthesis failed (%s); showing raw results", err)
		return out, nil
	}

	out.Answer = answer
	return out, nil
}

// buildPrompt concatenates retrieved chunks in ranked order, truncated to
// the configured rune budget, followed by the original question.
func (u *UseCase) buildPrompt(question string, results []*model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Relevant memories:\n")

	used := 0
	for _, r := range results {
		line := fmt.Sprintf("- %s (stored at %s)\n",
			r.Chunk.Text, r.CreatedAt.Format("2006-01-02 15:04"))
		runes := len([]rune(line))
		if used+runes > u.contextBudget {
			break
		}
		sb.WriteString(line)
		used += runes
	}

	sb.WriteString("\nUser query: ")
	sb.WriteString(question)
	return sb.String()
}
