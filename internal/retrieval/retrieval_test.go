package retrieval

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = f.vec
	}
	return out, nil
}

type fakeCatalog struct {
	hits       []store.EmbeddingHit
	hitsErr    error
	active     map[string]store.Product
	activeErr  error
	lexical    []store.Product
	lexicalErr error
}

func (f *fakeCatalog) SearchProductEmbeddings(ctx context.Context, vector []float32, limit int, minSimilarity float64) ([]store.EmbeddingHit, error) {
	return f.hits, f.hitsErr
}

func (f *fakeCatalog) GetActiveProducts(ctx context.Context, ids []string) (map[string]store.Product, error) {
	return f.active, f.activeErr
}

func (f *fakeCatalog) LexicalSearchProducts(ctx context.Context, query string, limit int) ([]store.Product, error) {
	return f.lexical, f.lexicalErr
}

func testPipeline(embedder Embedder, catalog Catalog) *Pipeline {
	return New(embedder, catalog, "test-embed", config.RetrievalConfig{}, log.New(io.Discard, "", 0))
}

func TestSearchSemanticOrderPreserved(t *testing.T) {
	catalog := &fakeCatalog{
		hits: []store.EmbeddingHit{
			{ProductID: "p2", Similarity: 0.91},
			{ProductID: "p1", Similarity: 0.74},
		},
		active: map[string]store.Product{
			"p1": {ID: "p1", Name: "Clay Tagine"},
			"p2": {ID: "p2", Name: "Ceramic Teapot"},
		},
	}
	p := testPipeline(&fakeEmbedder{vec: []float32{0.1, 0.2}}, catalog)

	res := p.Search(context.Background(), "teapot", 0, 0)
	if res.Fallback {
		t.Fatalf("semantic path must not be marked fallback")
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if res.Matches[0].Product.ID != "p2" || res.Matches[1].Product.ID != "p1" {
		t.Fatalf("similarity order not preserved: %s, %s", res.Matches[0].Product.ID, res.Matches[1].Product.ID)
	}
	if res.Matches[0].Similarity == nil || *res.Matches[0].Similarity != 0.91 {
		t.Fatalf("expected similarity 0.91 on first match")
	}
}

func TestSearchDropsInactiveProducts(t *testing.T) {
	catalog := &fakeCatalog{
		hits: []store.EmbeddingHit{
			{ProductID: "p1", Similarity: 0.9},
			{ProductID: "gone", Similarity: 0.8},
		},
		active: map[string]store.Product{
			"p1": {ID: "p1", Name: "Clay Tagine"},
		},
	}
	p := testPipeline(&fakeEmbedder{vec: []float32{0.5}}, catalog)

	res := p.Search(context.Background(), "tagine", 0, 0)
	if len(res.Matches) != 1 || res.Matches[0].Product.ID != "p1" {
		t.Fatalf("inactive hit not dropped: %+v", res.Matches)
	}
}

func TestSearchEmbedFailureFallsBackToLexical(t *testing.T) {
	catalog := &fakeCatalog{
		lexical: []store.Product{{ID: "p1", Name: "Ceramic Teapot"}},
	}
	p := testPipeline(&fakeEmbedder{err: errors.New("provider down")}, catalog)

	res := p.Search(context.Background(), "teapot", 0, 0)
	if !res.Fallback {
		t.Fatalf("expected fallback result")
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected 1 lexical match, got %d", len(res.Matches))
	}
	if res.Matches[0].Similarity != nil {
		t.Fatalf("lexical matches must not carry a similarity score")
	}
}

func TestSearchBelowThresholdFallsBack(t *testing.T) {
	catalog := &fakeCatalog{
		hits:    nil, // nothing above the similarity threshold
		lexical: []store.Product{{ID: "p3", Name: "Brass Lantern"}},
	}
	p := testPipeline(&fakeEmbedder{vec: []float32{0.1}}, catalog)

	res := p.Search(context.Background(), "lantern", 0, 0)
	if !res.Fallback || len(res.Matches) != 1 {
		t.Fatalf("expected lexical fallback, got %+v", res)
	}
}

func TestSearchEverythingFailingStillReturnsResult(t *testing.T) {
	catalog := &fakeCatalog{
		hitsErr:    errors.New("pgvector down"),
		lexicalErr: errors.New("db down"),
	}
	p := testPipeline(&fakeEmbedder{vec: []float32{0.1}}, catalog)

	res := p.Search(context.Background(), "anything", 0, 0)
	if len(res.Matches) != 0 {
		t.Fatalf("expected no matches")
	}
	if res.Message == "" {
		t.Fatalf("total failure must still carry a message")
	}
}

func TestSearchNoLexicalMatches(t *testing.T) {
	p := testPipeline(&fakeEmbedder{err: errors.New("down")}, &fakeCatalog{})

	res := p.Search(context.Background(), "unobtainium", 0, 0)
	if len(res.Matches) != 0 || res.Message == "" {
		t.Fatalf("expected empty result with message, got %+v", res)
	}
}
