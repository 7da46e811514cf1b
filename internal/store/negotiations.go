package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Negotiation session statuses. Negotiating is the only non-terminal state.
const (
	NegotiationStatusNegotiating = "negotiating"
	NegotiationStatusAccepted    = "accepted"
	NegotiationStatusRejected    = "rejected"
)

// ErrSessionConcluded indicates an action was attempted against a terminal
// negotiation session.
var ErrSessionConcluded = errors.New("negotiation already concluded")

// NegotiationSession is one multi-round price negotiation for a product.
type NegotiationSession struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"user_id,omitempty"`
	ProductID      string     `json:"product_id"`
	OriginalPrice  float64    `json:"original_price"`
	OfferedPrice   *float64   `json:"offered_price,omitempty"`
	FinalPrice     *float64   `json:"final_price,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Sentiment      float64    `json:"sentiment"`
	DiscountCodeID *string    `json:"discount_code_id,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NegotiationOffer is one recorded round within a session.
type NegotiationOffer struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Round     int       `json:"round"`
	Price     float64   `json:"price"`
	Message   string    `json:"message"`
	Sentiment float64   `json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}

const negotiationColumns = `id, user_id, product_id, original_price, offered_price, final_price, reason, sentiment, discount_code_id, status, created_at, updated_at`

func scanNegotiation(row interface{ Scan(...any) error }) (NegotiationSession, error) {
	var n NegotiationSession
	err := row.Scan(&n.ID, &n.UserID, &n.ProductID, &n.OriginalPrice, &n.OfferedPrice, &n.FinalPrice,
		&n.Reason, &n.Sentiment, &n.DiscountCodeID, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// CreateNegotiationSession opens a new session in the negotiating state.
func (s *Store) CreateNegotiationSession(ctx context.Context, userID *string, productID string, originalPrice float64) (NegotiationSession, error) {
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO negotiation_sessions (user_id, product_id, original_price, status)
VALUES ($1,$2,$3,'negotiating')
RETURNING `+negotiationColumns+`
`, userID, productID, originalPrice)
	return scanNegotiation(row)
}

// GetNegotiationSession loads one session.
func (s *Store) GetNegotiationSession(ctx context.Context, id string) (NegotiationSession, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+negotiationColumns+` FROM negotiation_sessions WHERE id=$1`, id)
	n, err := scanNegotiation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return NegotiationSession{}, fmt.Errorf("negotiation %s: %w", id, ErrNotFound)
	}
	return n, err
}

// ListOffers returns a session's recorded rounds, oldest first.
func (s *Store) ListOffers(ctx context.Context, sessionID string) ([]NegotiationOffer, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, round, price, message, sentiment, created_at
FROM negotiation_offers
WHERE session_id = $1
ORDER BY round ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NegotiationOffer
	for rows.Next() {
		var o NegotiationOffer
		if err := rows.Scan(&o.ID, &o.SessionID, &o.Round, &o.Price, &o.Message, &o.Sentiment, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordOffer stores one round and updates the session's running offered price
// and sentiment. The session must still be negotiating; the WHERE guard makes
// the update a no-op against terminal sessions.
func (s *Store) RecordOffer(ctx context.Context, sessionID string, round int, price float64, message string, sentiment float64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE negotiation_sessions
SET offered_price = $2, sentiment = $3, reason = $4, updated_at = NOW()
WHERE id = $1 AND status = 'negotiating'
`, sessionID, price, sentiment, message)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionConcluded)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO negotiation_offers (session_id, round, price, message, sentiment)
VALUES ($1,$2,$3,$4,$5)
`, sessionID, round, price, message, sentiment); err != nil {
		return err
	}
	return tx.Commit()
}

// ConcludeNegotiation transitions a session to a terminal status. The WHERE
// guard on the current status makes the transition at-most-once: a second
// conclusion attempt affects zero rows and reports ErrSessionConcluded, which
// is what keeps discount minting from double-firing under concurrent retries.
func (s *Store) ConcludeNegotiation(ctx context.Context, sessionID, status string, finalPrice *float64, discountCodeID *string) error {
	if status != NegotiationStatusAccepted && status != NegotiationStatusRejected {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE negotiation_sessions
SET status = $2, final_price = $3, discount_code_id = $4, updated_at = NOW()
WHERE id = $1 AND status = 'negotiating'
`, sessionID, status, finalPrice, discountCodeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionConcluded)
	}
	return nil
}
