// Command seed loads a few sample passages into the embedded chromem store
// so a dev setup has something to retrieve. It does nothing when the
// collection already holds documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"rag-chat/internal/config"
	aiAdapters "rag-chat/internal/infra/adapters/ai"
	"rag-chat/internal/infra/vector/chromem"
)

var samples = []struct {
	ID     string
	Text   string
	Source string
}{
	{"paris-1", "Paris is the capital and largest city of France.", "geography"},
	{"paris-2", "The Seine river flows through the centre of Paris.", "geography"},
	{"go-1", "Go is a statically typed, compiled language designed at Google.", "programming"},
	{"go-2", "Goroutines are lightweight threads managed by the Go runtime.", "programming"},
	{"rag-1", "Retrieval-augmented generation grounds model answers in retrieved passages.", "ml"},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.VectorStore.Backend != "chromem" {
		log.Fatalf("seed only supports vector_store.backend=chromem, got %q", cfg.VectorStore.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := chromem.NewSearcher(cfg.VectorStore.ChromemPath, cfg.VectorStore.Collection, cfg.RAG.TextField)
	if err != nil {
		log.Fatalf("chromem: %v", err)
	}
	if n := store.Count(); n > 0 {
		fmt.Printf("%d documents already present. No changes.\n", n)
		return
	}

	providers := map[string]aiAdapters.Provider{"noop": aiAdapters.NewNoopAIAdapter()}
	counter := aiAdapters.NewTiktokenCounter()
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.EmbeddingModel, counter)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		providers["openai"] = oa
	}
	if cfg.AI.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, "", cfg.AI.EmbeddingModel, counter)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		providers["gemini"] = gm
	}
	embedder, err := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, providers, cfg.AI.ModelProviders).EmbedderFor(cfg.AI.EmbeddingModel)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}

	for _, s := range samples {
		vec, err := embedder.Embed(ctx, s.Text)
		if err != nil {
			log.Fatalf("embed %s: %v", s.ID, err)
		}
		if err := store.Upsert(ctx, s.ID, s.Text, vec, map[string]string{"source": s.Source}); err != nil {
			log.Fatalf("upsert %s: %v", s.ID, err)
		}
		fmt.Printf("  - %s (%s)\n", s.ID, s.Source)
	}
	fmt.Printf("Seeded %d passages into %q.\n", len(samples), cfg.VectorStore.Collection)
}
