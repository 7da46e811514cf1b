package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/soukhq/souk/internal/negotiation"
	"github.com/soukhq/souk/internal/retrieval"
	"github.com/soukhq/souk/internal/store"
)

// Retriever is the retrieval pipeline contract.
type Retriever interface {
	Search(ctx context.Context, query string, limit int, threshold float64) retrieval.Result
}

// Negotiator is the negotiation engine contract.
type Negotiator interface {
	Negotiate(ctx context.Context, userID *string, productID, sessionID, message string) (negotiation.Outcome, error)
}

// Shop is the slice of the store the builtin capabilities need.
type Shop interface {
	GetProduct(ctx context.Context, id string) (store.Product, error)
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, error)
	GetVariantStock(ctx context.Context, productID, variantID string) (string, int, error)
	GetCart(ctx context.Context, userID string) (store.Cart, error)
	AddCartItem(ctx context.Context, userID, productID string, variantID *string, quantity int) error
	GetDiscountCode(ctx context.Context, code string) (store.DiscountCode, error)
	RecommendProducts(ctx context.Context, userID string, limit int) ([]store.Product, error)
	SummarizeActivity(ctx context.Context, userID string) ([]store.ActivitySummary, error)
	RecordActivity(ctx context.Context, userID, kind string, productID *string) error
}

func objSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// NewDefaultRegistry builds the full capability set over the given collaborators.
func NewDefaultRegistry(shop Shop, retriever Retriever, negotiator Negotiator) *Registry {
	r := NewRegistry()

	r.Register(&Tool{
		Name:        "search_products",
		Description: "Search the catalog with a free-text query. Use this whenever the shopper describes what they are looking for.",
		Parameters: objSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "What the shopper is looking for"},
			"limit": map[string]any{"type": "integer", "description": "Maximum results (default 5)"},
		}, "query"),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			query := argString(args, "query")
			if query == "" {
				return Failure("query is required")
			}
			res := retriever.Search(ctx, query, argInt(args, "limit", 0), 0)
			return map[string]any{
				"success":  len(res.Matches) > 0,
				"message":  res.Message,
				"fallback": res.Fallback,
				"products": res.Matches,
			}
		},
	})

	r.Register(&Tool{
		Name:        "filter_products",
		Description: "List catalog products by category, price bounds and sort order.",
		Parameters: objSchema(map[string]any{
			"category":  map[string]any{"type": "string"},
			"min_price": map[string]any{"type": "number"},
			"max_price": map[string]any{"type": "number"},
			"sort_by":   map[string]any{"type": "string", "enum": []string{"price_asc", "price_desc", "rating", "newest"}},
			"limit":     map[string]any{"type": "integer"},
		}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			f := store.ProductFilter{
				Category: argString(args, "category"),
				SortBy:   argString(args, "sort_by"),
				Limit:    argInt(args, "limit", 0),
			}
			if v, ok := argFloat(args, "min_price"); ok {
				f.MinPrice = &v
			}
			if v, ok := argFloat(args, "max_price"); ok {
				f.MaxPrice = &v
			}
			products, err := shop.ListProducts(ctx, f)
			if err != nil {
				return Failure("could not list products right now")
			}
			return map[string]any{
				"success":  true,
				"message":  fmt.Sprintf("found %d products", len(products)),
				"products": products,
			}
		},
	})

	r.Register(&Tool{
		Name:        "check_stock",
		Description: "Check availability of a product, or of one of its variants.",
		Parameters: objSchema(map[string]any{
			"product_id": map[string]any{"type": "string"},
			"variant_id": map[string]any{"type": "string"},
		}, "product_id"),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			productID := argString(args, "product_id")
			if productID == "" {
				return Failure("product_id is required")
			}
			product, err := shop.GetProduct(ctx, productID)
			if err != nil {
				return Failure("product not found")
			}
			stock := product.Stock
			name := product.Name
			if variantID := argString(args, "variant_id"); variantID != "" {
				variantName, variantStock, err := shop.GetVariantStock(ctx, productID, variantID)
				if err != nil {
					return Failure("variant not found")
				}
				stock = variantStock
				name = fmt.Sprintf("%s (%s)", name, variantName)
			}
			return map[string]any{
				"success":  true,
				"message":  stockMessage(name, stock),
				"stock":    stock,
				"in_stock": stock > 0,
			}
		},
	})

	r.Register(&Tool{
		Name:        "view_cart",
		Description: "Show the shopper's current cart contents and total.",
		Parameters:  objSchema(map[string]any{}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			if fail, ok := requireActor(actor); !ok {
				return fail
			}
			cart, err := shop.GetCart(ctx, actor.UserID)
			if err != nil {
				return Failure("could not load your cart")
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("cart has %d items totalling %.2f", len(cart.Items), cart.Total),
				"cart":    cart,
			}
		},
	})

	r.Register(&Tool{
		Name:        "add_to_cart",
		Description: "Add a product (optionally a specific variant) to the shopper's cart.",
		Parameters: objSchema(map[string]any{
			"product_id": map[string]any{"type": "string"},
			"variant_id": map[string]any{"type": "string"},
			"quantity":   map[string]any{"type": "integer", "description": "Defaults to 1"},
		}, "product_id"),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			if fail, ok := requireActor(actor); !ok {
				return fail
			}
			productID := argString(args, "product_id")
			if productID == "" {
				return Failure("product_id is required")
			}
			product, err := shop.GetProduct(ctx, productID)
			if err != nil {
				return Failure("product not found")
			}
			if !product.IsActive || product.Stock <= 0 {
				return Failure(fmt.Sprintf("%s is currently unavailable", product.Name))
			}
			var variantID *string
			if v := argString(args, "variant_id"); v != "" {
				variantID = &v
			}
			quantity := argInt(args, "quantity", 1)
			if err := shop.AddCartItem(ctx, actor.UserID, productID, variantID, quantity); err != nil {
				return Failure("could not add to cart")
			}
			_ = shop.RecordActivity(ctx, actor.UserID, "cart_add", &productID)
			cart, err := shop.GetCart(ctx, actor.UserID)
			if err != nil {
				return map[string]any{"success": true, "message": fmt.Sprintf("added %s to the cart", product.Name)}
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("added %s to the cart", product.Name),
				"cart":    cart,
			}
		},
	})

	r.Register(&Tool{
		Name:        "negotiate_price",
		Description: "Open or continue a price negotiation for a product on the shopper's behalf. Pass the shopper's own words as the message.",
		Parameters: objSchema(map[string]any{
			"product_id": map[string]any{"type": "string"},
			"message":    map[string]any{"type": "string", "description": "The shopper's negotiation message"},
			"session_id": map[string]any{"type": "string", "description": "Existing negotiation session to continue"},
		}, "product_id", "message"),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			if fail, ok := requireActor(actor); !ok {
				return fail
			}
			productID := argString(args, "product_id")
			message := argString(args, "message")
			if productID == "" || message == "" {
				return Failure("product_id and message are required")
			}
			userID := actor.UserID
			outcome, err := negotiator.Negotiate(ctx, &userID, productID, argString(args, "session_id"), message)
			if err != nil {
				switch {
				case errors.Is(err, store.ErrSessionConcluded):
					return Failure("this negotiation is already concluded")
				case errors.Is(err, store.ErrNotFound):
					return Failure("product not found")
				case errors.Is(err, negotiation.ErrBusy):
					return Failure("another offer for this negotiation is still being processed")
				}
				return Failure("negotiation failed, try again")
			}
			result := map[string]any{
				"success":       true,
				"message":       outcome.Message,
				"session_id":    outcome.Session.ID,
				"status":        outcome.Session.Status,
				"counter_price": outcome.CounterPrice,
				"accepted":      outcome.Accepted,
			}
			if outcome.Code != nil {
				result["discount_code"] = map[string]any{
					"code":           outcome.Code.Code,
					"discount_type":  outcome.Code.DiscountType,
					"discount_value": outcome.Code.DiscountValue,
				}
			}
			return result
		},
	})

	r.Register(&Tool{
		Name:        "validate_discount",
		Description: "Check whether a discount code is valid and what it is worth.",
		Parameters: objSchema(map[string]any{
			"code": map[string]any{"type": "string"},
		}, "code"),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			code := argString(args, "code")
			if code == "" {
				return Failure("code is required")
			}
			d, err := shop.GetDiscountCode(ctx, code)
			if err != nil {
				switch {
				case errors.Is(err, store.ErrCodeExpired):
					return Failure("that code has expired")
				case errors.Is(err, store.ErrCodeExhausted):
					return Failure("that code has already been used")
				}
				return Failure("unknown discount code")
			}
			return map[string]any{
				"success":        true,
				"message":        "code is valid",
				"code":           d.Code,
				"discount_type":  d.DiscountType,
				"discount_value": d.DiscountValue,
			}
		},
	})

	r.Register(&Tool{
		Name:        "recommend_products",
		Description: "Recommend products based on the shopper's recent activity.",
		Parameters: objSchema(map[string]any{
			"limit": map[string]any{"type": "integer"},
		}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			if fail, ok := requireActor(actor); !ok {
				return fail
			}
			products, err := shop.RecommendProducts(ctx, actor.UserID, argInt(args, "limit", 5))
			if err != nil {
				return Failure("could not compute recommendations")
			}
			return map[string]any{
				"success":  true,
				"message":  fmt.Sprintf("%d recommendations", len(products)),
				"products": products,
			}
		},
	})

	r.Register(&Tool{
		Name:        "user_activity",
		Description: "Summarize the shopper's recent store activity.",
		Parameters:  objSchema(map[string]any{}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			if fail, ok := requireActor(actor); !ok {
				return fail
			}
			summary, err := shop.SummarizeActivity(ctx, actor.UserID)
			if err != nil {
				return Failure("could not load activity")
			}
			return map[string]any{
				"success":  true,
				"message":  fmt.Sprintf("%d activity kinds in the last 30 days", len(summary)),
				"activity": summary,
			}
		},
	})

	// pure navigation intents: fixed payloads, no side effects
	r.Register(&Tool{
		Name:        "go_to_cart",
		Description: "Send the shopper to their cart page. Use when they ask to see or open the cart.",
		Parameters:  objSchema(map[string]any{}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			return map[string]any{"success": true, "message": "navigating to cart", "navigate": "/cart"}
		},
	})
	r.Register(&Tool{
		Name:        "go_to_checkout",
		Description: "Send the shopper to checkout. Use when they are ready to pay.",
		Parameters:  objSchema(map[string]any{}),
		Handler: func(ctx context.Context, actor Actor, args map[string]any) map[string]any {
			return map[string]any{"success": true, "message": "navigating to checkout", "navigate": "/checkout"}
		},
	})

	return r
}

func stockMessage(name string, stock int) string {
	switch {
	case stock <= 0:
		return fmt.Sprintf("%s is out of stock", name)
	case stock < 5:
		return fmt.Sprintf("only %d of %s left", stock, name)
	default:
		return fmt.Sprintf("%s is in stock (%d available)", name, stock)
	}
}
