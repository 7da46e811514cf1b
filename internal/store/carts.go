package store

import (
	"context"
	"time"
)

// CartItem is one line of a user's cart, joined with its product row.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Cart is a user's current cart snapshot.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// GetOrCreateCart returns the user's cart id, creating the row on first use.
func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO carts (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id
`, userID).Scan(&id)
	return id, err
}

// GetCart loads the user's cart with all items and the running total.
func (s *Store) GetCart(ctx context.Context, userID string) (Cart, error) {
	cartID, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT ci.id, ci.product_id, ci.variant_id, p.name, p.price, ci.quantity
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at
`, cartID)
	if err != nil {
		return Cart{}, err
	}
	defer rows.Close()
	cart := Cart{ID: cartID, UserID: userID, UpdatedAt: time.Now()}
	for rows.Next() {
		var item CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.VariantID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return Cart{}, err
		}
		cart.Total += item.Price * float64(item.Quantity)
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

// AddCartItem upserts a line into the user's cart, summing quantities for
// repeated adds of the same product/variant.
func (s *Store) AddCartItem(ctx context.Context, userID, productID string, variantID *string, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	cartID, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO cart_items (cart_id, product_id, variant_id, quantity)
VALUES ($1,$2,$3,$4)
ON CONFLICT (cart_id, product_id, variant_id)
DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
`, cartID, productID, variantID, quantity)
	return err
}
