// Package policy evaluates an optional Rego policy before a memory is
// persisted. The policy decides whether the text may be stored and may
// inject extra metadata tags (e.g. classification labels).
//
// The policy is queried at data.memory.store with input:
//
//	{"text": "<memory text>", "metadata": {"tags": "..."}}
//
// and is expected to produce a document like:
//
//	{"allow": true, "reason": "...", "tags": {"source": "cli"}}
//
// When no policy file is configured every store is allowed.
package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

const storeQuery = "data.memory.store"

// Decision is the outcome of a store policy evaluation
type Decision struct {
	Allow  bool
	Reason string
	Tags   model.Metadata
}

// StorePolicy evaluates data.memory.store against memory candidates
type StorePolicy struct {
	query *rego.PreparedEvalQuery
}

// Load reads all .rego files at path (a file or a directory) and prepares
// the store query. Returns nil when path is empty: no policy configured.
func Load(ctx context.Context, path string) (*StorePolicy, error) {
	if path == "" {
		return nil, nil
	}

	files, err := regoFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, goerr.New("no policy files found", goerr.V("path", path))
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(storeQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	query, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query", goerr.V("path", path))
	}

	return &StorePolicy{query: &query}, nil
}

// MustCompile builds a policy from an inline module. Test helper.
func MustCompile(ctx context.Context, module string) *StorePolicy {
	query, err := rego.New(
		rego.Query(storeQuery),
		rego.Module("inline.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		panic(err)
	}
	return &StorePolicy{query: &query}
}

// Evaluate runs the store policy for the given memory candidate. A nil
// policy allows everything.
func (p *StorePolicy) Evaluate(ctx context.Context, text string, metadata model.Metadata) (*Decision, error) {
	if p == nil {
		return &Decision{Allow: true}, nil
	}

	input := map[string]any{
		"text":     text,
		"metadata": map[string]any(metadata),
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate store policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// Policy does not define data.memory.store: treat as allow
		return &Decision{Allow: true}, nil
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("store policy result is not an object",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	decision := &Decision{}
	if allow, ok := doc["allow"].(bool); ok {
		decision.Allow = allow
	}
	if reason, ok := doc["reason"].(string); ok {
		decision.Reason = reason
	}
	if tags, ok := doc["tags"].(map[string]any); ok && len(tags) > 0 {
		decision.Tags = make(model.Metadata, len(tags))
		for k, v := range tags {
			// Rego numbers arrive as json.Number
			if n, ok := v.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					v = f
				}
			}
			decision.Tags[k] = v
		}
		if err := decision.Tags.Validate(); err != nil {
			return nil, goerr.Wrap(err, "store policy produced invalid tags")
		}
	}

	return decision, nil
}

func regoFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat policy path", goerr.V("path", path))
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("path", path))
	}
	return files, nil
}
