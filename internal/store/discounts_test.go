package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cleanup := func() { db.Close() }
	return &Store{DB: db}, mock, cleanup
}

func discountRow(code string, usedCount, usageLimit int, expiresAt time.Time, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "discount_type", "discount_value", "user_id", "product_id",
		"min_purchase_amount", "max_discount_amount", "usage_limit", "used_count",
		"expires_at", "is_active", "created_at",
	}).AddRow("code-1", code, DiscountTypeFixed, 30.0, nil, nil, nil, nil, usageLimit, usedCount, expiresAt, active, time.Now())
}

func TestGetDiscountCodeValid(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`SELECT ` + discountColumns + ` FROM discount_codes WHERE code=$1`)
	mock.ExpectQuery(query).WithArgs("SOUK-AB12CD34").
		WillReturnRows(discountRow("SOUK-AB12CD34", 0, 1, time.Now().Add(time.Hour), true))

	d, err := st.GetDiscountCode(context.Background(), "SOUK-AB12CD34")
	if err != nil {
		t.Fatalf("GetDiscountCode: %v", err)
	}
	if d.DiscountValue != 30 {
		t.Fatalf("expected value 30, got %.2f", d.DiscountValue)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDiscountCodeClassification(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`SELECT ` + discountColumns + ` FROM discount_codes WHERE code=$1`)

	mock.ExpectQuery(query).WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := st.GetDiscountCode(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(query).WithArgs("expired").
		WillReturnRows(discountRow("expired", 0, 1, time.Now().Add(-time.Hour), true))
	if _, err := st.GetDiscountCode(context.Background(), "expired"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	mock.ExpectQuery(query).WithArgs("inactive").
		WillReturnRows(discountRow("inactive", 0, 1, time.Now().Add(time.Hour), false))
	if _, err := st.GetDiscountCode(context.Background(), "inactive"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired for inactive, got %v", err)
	}

	mock.ExpectQuery(query).WithArgs("used").
		WillReturnRows(discountRow("used", 1, 1, time.Now().Add(time.Hour), true))
	if _, err := st.GetDiscountCode(context.Background(), "used"); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
}

func TestConsumeDiscountCodeSingleUse(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	update := regexp.QuoteMeta(`
UPDATE discount_codes
SET used_count = used_count + 1
WHERE code = $1 AND is_active AND expires_at > NOW() AND used_count < usage_limit
`)
	mock.ExpectExec(update).WithArgs("SOUK-AB12CD34").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.ConsumeDiscountCode(context.Background(), "SOUK-AB12CD34"); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	// second redemption hits the conditional guard and affects zero rows
	mock.ExpectExec(update).WithArgs("SOUK-AB12CD34").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.ConsumeDiscountCode(context.Background(), "SOUK-AB12CD34"); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted on reuse, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
