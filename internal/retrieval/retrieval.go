// Package retrieval turns free-text queries into ranked product matches via
// embedding similarity, with a lexical fallback over the live catalog.
package retrieval

import (
	"context"
	"fmt"
	"log"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/store"
	"github.com/soukhq/souk/internal/telemetry"
)

// Embedder is the slice of the LLM provider the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Catalog is the slice of the store the pipeline needs.
type Catalog interface {
	SearchProductEmbeddings(ctx context.Context, vector []float32, limit int, minSimilarity float64) ([]store.EmbeddingHit, error)
	GetActiveProducts(ctx context.Context, ids []string) (map[string]store.Product, error)
	LexicalSearchProducts(ctx context.Context, query string, limit int) ([]store.Product, error)
}

// Match is one retrieved product. Similarity is nil when the match came from
// the lexical fallback rather than vector search.
type Match struct {
	Product    store.Product `json:"product"`
	Similarity *float64      `json:"similarity,omitempty"`
}

// Result is the pipeline output. It is always well-formed: provider failures
// degrade to the fallback, and an empty candidate set is reported through
// Message rather than an error.
type Result struct {
	Matches  []Match `json:"matches"`
	Fallback bool    `json:"fallback"`
	Message  string  `json:"message"`
}

// Pipeline retrieves products for free-text queries.
type Pipeline struct {
	embedder Embedder
	catalog  Catalog
	model    string
	logger   *log.Logger

	defaultThreshold float64
	defaultLimit     int
}

// New builds a Pipeline.
func New(embedder Embedder, catalog Catalog, model string, cfg config.RetrievalConfig, logger *log.Logger) *Pipeline {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.6
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 5
	}
	return &Pipeline{
		embedder:         embedder,
		catalog:          catalog,
		model:            model,
		logger:           logger,
		defaultThreshold: threshold,
		defaultLimit:     limit,
	}
}

// Search runs the full pipeline for a query. It never returns an error: any
// failure on the semantic path degrades to the lexical fallback, and a failure
// there yields an empty Result with a descriptive message.
func (p *Pipeline) Search(ctx context.Context, query string, limit int, threshold float64) Result {
	if limit <= 0 {
		limit = p.defaultLimit
	}
	if threshold <= 0 {
		threshold = p.defaultThreshold
	}

	matches, err := p.semantic(ctx, query, limit, threshold)
	if err != nil {
		p.logger.Printf("semantic search failed for %q, falling back: %v", query, err)
	}
	if len(matches) > 0 {
		return Result{Matches: matches, Message: fmt.Sprintf("found %d matching products", len(matches))}
	}

	telemetry.RetrievalFallbacks.Inc()
	products, err := p.catalog.LexicalSearchProducts(ctx, query, limit)
	if err != nil {
		p.logger.Printf("lexical search failed for %q: %v", query, err)
		return Result{Message: "product search is temporarily unavailable"}
	}
	if len(products) == 0 {
		return Result{Fallback: true, Message: fmt.Sprintf("no products matched %q", query)}
	}
	out := make([]Match, 0, len(products))
	for _, prod := range products {
		out = append(out, Match{Product: prod})
	}
	return Result{Matches: out, Fallback: true, Message: fmt.Sprintf("found %d matching products", len(out))}
}

// semantic embeds the query and runs the nearest-neighbour search, enriching
// hits with live product rows. Inactive products are dropped while preserving
// descending-similarity order.
func (p *Pipeline) semantic(ctx context.Context, query string, limit int, threshold float64) ([]Match, error) {
	vecs, err := p.embedder.Embed(ctx, p.model, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector")
	}
	hits, err := p.catalog.SearchProductEmbeddings(ctx, vecs[0], limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ProductID)
	}
	products, err := p.catalog.GetActiveProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("enrich products: %w", err)
	}
	var matches []Match
	for _, h := range hits {
		prod, ok := products[h.ProductID]
		if !ok {
			continue
		}
		sim := h.Similarity
		matches = append(matches, Match{Product: prod, Similarity: &sim})
	}
	return matches, nil
}
