package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Discount code types.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

var (
	// ErrCodeExpired indicates the code exists but is past its expiry or inactive.
	ErrCodeExpired = errors.New("discount code expired")
	// ErrCodeExhausted indicates the code has reached its usage limit.
	ErrCodeExhausted = errors.New("discount code usage limit reached")
)

// DiscountCode is a bounded-use coupon, minted by an accepted negotiation or
// through an administrative path.
type DiscountCode struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     float64    `json:"discount_value"`
	UserID            *string    `json:"user_id,omitempty"`
	ProductID         *string    `json:"product_id,omitempty"`
	MinPurchaseAmount *float64   `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount *float64   `json:"max_discount_amount,omitempty"`
	UsageLimit        int        `json:"usage_limit"`
	UsedCount         int        `json:"used_count"`
	ExpiresAt         time.Time  `json:"expires_at"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

const discountColumns = `id, code, discount_type, discount_value, user_id, product_id, min_purchase_amount, max_discount_amount, usage_limit, used_count, expires_at, is_active, created_at`

func scanDiscount(row interface{ Scan(...any) error }) (DiscountCode, error) {
	var d DiscountCode
	err := row.Scan(&d.ID, &d.Code, &d.DiscountType, &d.DiscountValue, &d.UserID, &d.ProductID,
		&d.MinPurchaseAmount, &d.MaxDiscountAmount, &d.UsageLimit, &d.UsedCount, &d.ExpiresAt, &d.IsActive, &d.CreatedAt)
	return d, err
}

// CreateDiscountCode inserts a new code and returns its id.
func (s *Store) CreateDiscountCode(ctx context.Context, d DiscountCode) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO discount_codes (code, discount_type, discount_value, user_id, product_id, min_purchase_amount, max_discount_amount, usage_limit, expires_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true)
RETURNING id
`, d.Code, d.DiscountType, d.DiscountValue, d.UserID, d.ProductID, d.MinPurchaseAmount, d.MaxDiscountAmount, d.UsageLimit, d.ExpiresAt).Scan(&id)
	return id, err
}

// GetDiscountCode loads a code by its public string and classifies its state:
// unknown codes are ErrNotFound, inactive or expired codes ErrCodeExpired, and
// codes past their usage limit ErrCodeExhausted.
func (s *Store) GetDiscountCode(ctx context.Context, code string) (DiscountCode, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE code=$1`, code)
	d, err := scanDiscount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DiscountCode{}, fmt.Errorf("discount code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return DiscountCode{}, err
	}
	if !d.IsActive || time.Now().After(d.ExpiresAt) {
		return DiscountCode{}, fmt.Errorf("discount code %s: %w", code, ErrCodeExpired)
	}
	if d.UsedCount >= d.UsageLimit {
		return DiscountCode{}, fmt.Errorf("discount code %s: %w", code, ErrCodeExhausted)
	}
	return d, nil
}

// ConsumeDiscountCode atomically increments the usage counter. The conditional
// UPDATE enforces used_count <= usage_limit; an exhausted, expired or inactive
// code affects zero rows.
func (s *Store) ConsumeDiscountCode(ctx context.Context, code string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE discount_codes
SET used_count = used_count + 1
WHERE code = $1 AND is_active AND expires_at > NOW() AND used_count < usage_limit
`, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("discount code %s: %w", code, ErrCodeExhausted)
	}
	return nil
}
