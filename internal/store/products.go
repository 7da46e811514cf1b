package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound indicates a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Product is a catalog row. FloorPrice is the secret negotiation floor and must
// never be serialized to clients; it carries no json tag on purpose.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	FloorPrice  float64   `json:"-"`
	Rating      float64   `json:"rating"`
	Stock       int       `json:"stock"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Variant is a product variant with its own stock.
type Variant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

// ProductFilter narrows a structured catalog listing.
type ProductFilter struct {
	Category string
	MinPrice *float64
	MaxPrice *float64
	SortBy   string // price_asc, price_desc, rating, newest
	Limit    int
}

// EmbeddingHit is a nearest-neighbour match against product_embeddings.
type EmbeddingHit struct {
	ProductID  string
	Similarity float64
}

const productColumns = `id, name, description, category, price, floor_price, rating, stock, is_active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.FloorPrice, &p.Rating, &p.Stock, &p.IsActive, &p.CreatedAt)
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, err
}

// GetActiveProducts returns the active subset of the given ids, keyed by id.
func (s *Store) GetActiveProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE is_active AND id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// ListProducts applies a structured filter over active products.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_active`
	args := []any{}
	idx := 1
	if f.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if f.MinPrice != nil {
		query += fmt.Sprintf(" AND price >= $%d", idx)
		args = append(args, *f.MinPrice)
		idx++
	}
	if f.MaxPrice != nil {
		query += fmt.Sprintf(" AND price <= $%d", idx)
		args = append(args, *f.MaxPrice)
		idx++
	}
	switch f.SortBy {
	case "price_asc":
		query += " ORDER BY price ASC"
	case "price_desc":
		query += " ORDER BY price DESC"
	case "newest":
		query += " ORDER BY created_at DESC"
	default:
		query += " ORDER BY rating DESC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query += fmt.Sprintf(" LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LexicalSearchProducts is the fallback path for the retrieval pipeline:
// case-insensitive substring match on name and description, best-rated first.
func (s *Store) LexicalSearchProducts(ctx context.Context, query string, limit int) ([]Product, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	pattern := "%" + query + "%"
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+productColumns+`
FROM products
WHERE is_active AND (name ILIKE $1 OR description ILIKE $1)
ORDER BY rating DESC
LIMIT $2
`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchProductEmbeddings returns the closest product embeddings for the supplied
// vector, ordered by ascending cosine distance. Similarity is 1 - distance and
// hits below minSimilarity are dropped.
func (s *Store) SearchProductEmbeddings(ctx context.Context, vector []float32, limit int, minSimilarity float64) ([]EmbeddingHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if limit <= 0 {
		limit = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT product_id, embedding <=> $1::vector AS distance
FROM product_embeddings
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vecLiteral, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []EmbeddingHit
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		sim := 1 - distance
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, EmbeddingHit{ProductID: id, Similarity: sim})
	}
	return hits, rows.Err()
}

// UpsertProductEmbedding stores or replaces the semantic vector for a product.
func (s *Store) UpsertProductEmbedding(ctx context.Context, productID string, vector []float32) error {
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO product_embeddings (product_id, embedding, updated_at)
VALUES ($1, $2::vector, NOW())
ON CONFLICT (product_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()
`, productID, vecLiteral)
	return err
}

// ListActiveProductTexts returns every active product id with its name and
// description, for the embedding index job.
func (s *Store) ListActiveProductTexts(ctx context.Context) (ids []string, texts []string, err error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, description FROM products WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name, desc string
		if err := rows.Scan(&id, &name, &desc); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		texts = append(texts, name+"\n"+desc)
	}
	return ids, texts, rows.Err()
}

// GetVariantStock returns the stock for a variant of a product.
func (s *Store) GetVariantStock(ctx context.Context, productID, variantID string) (string, int, error) {
	var name string
	var stock int
	err := s.DB.QueryRowContext(ctx, `SELECT name, stock FROM product_variants WHERE id=$1 AND product_id=$2`, variantID, productID).Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}
	return name, stock, err
}
