package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/chunk"
)

func TestParseMetadata(t *testing.T) {
	metadata := gt.R1(parseMetadata([]string{"source=slack", "channel=dev"})).NoError(t)
	gt.Equal(t, "slack", metadata["source"])
	gt.Equal(t, "dev", metadata["channel"])

	gt.V(t, gt.R1(parseMetadata(nil)).NoError(t)).Nil()
}

func TestParseMetadataInvalid(t *testing.T) {
	cases := []string{"no-separator", "=value"}
	for _, entry := range cases {
		_, err := parseMetadata([]string{entry})
		gt.Error(t, err)
	}
}

func TestApplyProfileFillsUnsetValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := []byte(`
backend: memory
embedding_provider: ollama
chunk_size: 200
top_k: 3
`)
	gt.NoError(t, os.WriteFile(path, content, 0o600))

	cfg := config{
		profilePath: path,
		backend:     "sqlite", // set by flag, must win over the profile
	}
	gt.NoError(t, cfg.applyProfile())

	gt.Equal(t, "sqlite", cfg.backend)
	gt.Equal(t, "ollama", cfg.embeddingProvider)
	gt.Equal(t, int64(200), cfg.chunkSize)
	gt.Equal(t, int64(3), cfg.topK)
}

func TestApplyProfileMissingFile(t *testing.T) {
	cfg := config{profilePath: "/nonexistent/config.yml"}
	gt.Error(t, cfg.applyProfile())
}

func TestApplyProfileNoPath(t *testing.T) {
	cfg := config{}
	gt.NoError(t, cfg.applyProfile())
}

func TestNewSplitterDefaults(t *testing.T) {
	cfg := config{}
	splitter := gt.R1(cfg.newSplitter()).NoError(t)
	gt.Equal(t, chunk.DefaultSize, splitter.Size)
	gt.Equal(t, chunk.DefaultOverlap, splitter.Overlap)
}

func TestNewSplitterScalesOverlap(t *testing.T) {
	cfg := config{chunkSize: 50}
	splitter := gt.R1(cfg.newSplitter()).NoError(t)
	gt.Equal(t, 50, splitter.Size)
	gt.Equal(t, 5, splitter.Overlap)
}

func TestNewRepositoryMemoryBackend(t *testing.T) {
	cfg := config{backend: "memory"}
	repo := gt.R1(cfg.newRepository(context.Background())).NoError(t)
	defer repo.Close()

	count := gt.R1(repo.Count(context.Background())).NoError(t)
	gt.Equal(t, 0, count)
}

func TestNewRepositoryUnknownBackend(t *testing.T) {
	cfg := config{backend: "dynamodb"}
	_, err := cfg.newRepository(context.Background())
	gt.Error(t, err)
}

func TestNewRepositoryFirestoreRequiresProject(t *testing.T) {
	cfg := config{backend: "firestore"}
	_, err := cfg.newRepository(context.Background())
	gt.Error(t, err)
}

func TestNewEmbedderRequiresCredentials(t *testing.T) {
	cfg := config{embeddingProvider: "openai"}
	_, err := cfg.newEmbedder(context.Background())
	gt.Error(t, err)

	cfg = config{embeddingProvider: "gemini"}
	_, err = cfg.newEmbedder(context.Background())
	gt.Error(t, err)
}
