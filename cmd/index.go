package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/llm"
	"github.com/soukhq/souk/internal/store"
)

// indexCMD rebuilds the product embedding index from the live catalog.
func indexCMD() *cobra.Command {
	var cfgPath string
	var batchSize int

	var index = &cobra.Command{
		Use:   "index",
		Short: "Rebuild product embeddings for semantic search",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger := log.New(log.Writer(), "[INDEX] ", log.LstdFlags)

			ctx := context.Background()
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}
			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			ids, texts, err := st.ListActiveProductTexts(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				logger.Printf("no active products to index")
				return nil
			}

			model := cfg.LLM.Routing.Embedding
			indexed := 0
			batchSize = clampBatchSize(batchSize)
			for start := 0; start < len(ids); start += batchSize {
				end := start + batchSize
				if end > len(ids) {
					end = len(ids)
				}
				vecs, err := provider.Embed(ctx, model, texts[start:end])
				if err != nil {
					return fmt.Errorf("embed batch at %d: %w", start, err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("embed batch at %d: got %d vectors for %d inputs", start, len(vecs), end-start)
				}
				for i, vec := range vecs {
					if err := st.UpsertProductEmbedding(ctx, ids[start+i], vec); err != nil {
						return fmt.Errorf("upsert embedding for %s: %w", ids[start+i], err)
					}
					indexed++
				}
				logger.Printf("indexed %d/%d products", indexed, len(ids))
			}
			return nil
		},
	}
	index.Flags().IntVar(&batchSize, "batch", 64, "embedding batch size")
	index.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return index
}

// clampBatchSize guards the batch stride against zero and negative flag values.
func clampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
