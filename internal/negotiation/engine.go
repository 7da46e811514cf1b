// Package negotiation implements the per-product price negotiation state
// machine and its sentiment-driven pricing policy.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/store"
	"github.com/soukhq/souk/internal/telemetry"
)

// ErrNoOffer indicates an explicit accept was attempted before any counter
// offer was recorded.
var ErrNoOffer = errors.New("no offer to accept yet")

// Sessions is the slice of the store the engine needs.
type Sessions interface {
	GetProduct(ctx context.Context, id string) (store.Product, error)
	CreateNegotiationSession(ctx context.Context, userID *string, productID string, originalPrice float64) (store.NegotiationSession, error)
	GetNegotiationSession(ctx context.Context, id string) (store.NegotiationSession, error)
	ListOffers(ctx context.Context, sessionID string) ([]store.NegotiationOffer, error)
	RecordOffer(ctx context.Context, sessionID string, round int, price float64, message string, sentiment float64) error
	ConcludeNegotiation(ctx context.Context, sessionID, status string, finalPrice *float64, discountCodeID *string) error
	CreateDiscountCode(ctx context.Context, d store.DiscountCode) (string, error)
}

// Outcome is the result of one negotiation round or an explicit accept.
type Outcome struct {
	Message      string
	Session      store.NegotiationSession
	Code         *store.DiscountCode
	Sentiment    float64
	CounterPrice float64
	Accepted     bool
}

// Engine drives negotiation sessions.
type Engine struct {
	sessions Sessions
	judge    Judge
	locker   Locker
	logger   *log.Logger

	maxDiscountFraction float64
	rudeCeilingFactor   float64
	sentimentThreshold  float64
	codeTTL             time.Duration
	lockTTL             time.Duration
}

// NewEngine builds an Engine with policy bounds from config.
func NewEngine(sessions Sessions, judge Judge, locker Locker, cfg config.NegotiationConfig, logger *log.Logger) *Engine {
	e := &Engine{
		sessions:            sessions,
		judge:               judge,
		locker:              locker,
		logger:              logger,
		maxDiscountFraction: cfg.MaxDiscountFraction,
		rudeCeilingFactor:   cfg.RudeCeilingFactor,
		sentimentThreshold:  cfg.SentimentThreshold,
		codeTTL:             cfg.CodeTTL,
		lockTTL:             cfg.LockTTL,
	}
	if e.maxDiscountFraction <= 0 || e.maxDiscountFraction >= 1 {
		e.maxDiscountFraction = 0.30
	}
	if e.rudeCeilingFactor < 1 {
		e.rudeCeilingFactor = 1.15
	}
	if e.sentimentThreshold <= 0 {
		e.sentimentThreshold = 0.3
	}
	if e.codeTTL <= 0 {
		e.codeTTL = 24 * time.Hour
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 30 * time.Second
	}
	return e
}

// Negotiate runs one round: load or open the session, judge the buyer
// message, clamp the counter price into policy bounds, record the round, and
// conclude the session when the judge is willing to close.
func (e *Engine) Negotiate(ctx context.Context, userID *string, productID, sessionID, message string) (Outcome, error) {
	if sessionID == "" {
		product, err := e.sessions.GetProduct(ctx, productID)
		if err != nil {
			return Outcome{}, err
		}
		created, err := e.sessions.CreateNegotiationSession(ctx, userID, product.ID, product.Price)
		if err != nil {
			return Outcome{}, err
		}
		sessionID = created.ID
	}

	release, err := e.locker.Acquire(ctx, sessionID, e.lockTTL)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	// the status check must happen under the lock
	sess, err := e.sessions.GetNegotiationSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if sess.Status != store.NegotiationStatusNegotiating {
		return Outcome{}, fmt.Errorf("session %s: %w", sess.ID, store.ErrSessionConcluded)
	}

	product, err := e.sessions.GetProduct(ctx, sess.ProductID)
	if err != nil {
		return Outcome{}, err
	}
	listed := sess.OriginalPrice
	floor := product.FloorPrice
	if floor <= 0 || floor > listed {
		floor = listed * (1 - e.maxDiscountFraction)
	}

	offers, err := e.sessions.ListOffers(ctx, sess.ID)
	if err != nil {
		return Outcome{}, err
	}
	round := len(offers) + 1

	judgment, err := e.judge.Judge(ctx, JudgeInput{
		ProductName: product.Name,
		ListedPrice: listed,
		FloorPrice:  floor,
		Message:     message,
		Round:       round,
		PriorOffers: offers,
	})
	if err != nil {
		e.logger.Printf("judge failed for session %s, using conservative fallback: %v", sess.ID, err)
		judgment = fallbackJudgment(listed)
	}

	sentiment := clamp(judgment.Sentiment, 0, 1)
	var counter float64
	rude := sentiment < e.sentimentThreshold
	if rude {
		// soft deterrent: the counter may rise above the listed price
		counter = clamp(judgment.CounterPrice, listed, listed*e.rudeCeilingFactor)
	} else {
		counter = clamp(judgment.CounterPrice, floor, listed)
		if maxDiscount := listed * e.maxDiscountFraction; listed-counter > maxDiscount {
			counter = listed - maxDiscount
		}
		if counter < floor {
			counter = floor
		}
	}

	if err := e.sessions.RecordOffer(ctx, sess.ID, round, counter, message, sentiment); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Message:      judgment.Message,
		Sentiment:    sentiment,
		CounterPrice: counter,
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("I can do %.2f for you.", counter)
	}

	closing := !rude && judgment.Accept
	switch {
	case closing && counter < listed:
		code, err := e.mintCode(ctx, sess, listed-counter)
		if err != nil {
			return Outcome{}, err
		}
		if err := e.sessions.ConcludeNegotiation(ctx, sess.ID, store.NegotiationStatusAccepted, &counter, &code.ID); err != nil {
			return Outcome{}, err
		}
		out.Code = code
		out.Accepted = true
	case closing:
		// tone accepted but no price reduction produced
		if err := e.sessions.ConcludeNegotiation(ctx, sess.ID, store.NegotiationStatusAccepted, &counter, nil); err != nil {
			return Outcome{}, err
		}
	}

	out.Session, err = e.sessions.GetNegotiationSession(ctx, sess.ID)
	if err != nil {
		return Outcome{}, err
	}
	telemetry.NegotiationRounds.WithLabelValues(out.Session.Status).Inc()
	return out, nil
}

// AcceptOffer closes a session at its currently recorded counter price.
func (e *Engine) AcceptOffer(ctx context.Context, sessionID string) (Outcome, error) {
	release, err := e.locker.Acquire(ctx, sessionID, e.lockTTL)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	sess, err := e.sessions.GetNegotiationSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if sess.Status != store.NegotiationStatusNegotiating {
		return Outcome{}, fmt.Errorf("session %s: %w", sess.ID, store.ErrSessionConcluded)
	}
	if sess.OfferedPrice == nil {
		return Outcome{}, fmt.Errorf("session %s: %w", sess.ID, ErrNoOffer)
	}

	counter := *sess.OfferedPrice
	listed := sess.OriginalPrice
	out := Outcome{
		Message:      fmt.Sprintf("Deal at %.2f.", counter),
		Sentiment:    sess.Sentiment,
		CounterPrice: counter,
		Accepted:     true,
	}
	var codeID *string
	if counter < listed {
		code, err := e.mintCode(ctx, sess, listed-counter)
		if err != nil {
			return Outcome{}, err
		}
		out.Code = code
		codeID = &code.ID
	}
	if err := e.sessions.ConcludeNegotiation(ctx, sessionID, store.NegotiationStatusAccepted, &counter, codeID); err != nil {
		return Outcome{}, err
	}
	out.Session, err = e.sessions.GetNegotiationSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Decline closes a session as rejected without minting anything.
func (e *Engine) Decline(ctx context.Context, sessionID string) (store.NegotiationSession, error) {
	release, err := e.locker.Acquire(ctx, sessionID, e.lockTTL)
	if err != nil {
		return store.NegotiationSession{}, err
	}
	defer release()

	sess, err := e.sessions.GetNegotiationSession(ctx, sessionID)
	if err != nil {
		return store.NegotiationSession{}, err
	}
	if sess.Status != store.NegotiationStatusNegotiating {
		return store.NegotiationSession{}, fmt.Errorf("session %s: %w", sess.ID, store.ErrSessionConcluded)
	}
	if err := e.sessions.ConcludeNegotiation(ctx, sessionID, store.NegotiationStatusRejected, nil, nil); err != nil {
		return store.NegotiationSession{}, err
	}
	return e.sessions.GetNegotiationSession(ctx, sessionID)
}

// mintCode creates the single-use fixed discount for an accepted negotiation.
func (e *Engine) mintCode(ctx context.Context, sess store.NegotiationSession, value float64) (*store.DiscountCode, error) {
	code := store.DiscountCode{
		Code:          NewCode(),
		DiscountType:  store.DiscountTypeFixed,
		DiscountValue: value,
		UserID:        sess.UserID,
		ProductID:     &sess.ProductID,
		UsageLimit:    1,
		ExpiresAt:     time.Now().Add(e.codeTTL),
		IsActive:      true,
	}
	id, err := e.sessions.CreateDiscountCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("mint discount code: %w", err)
	}
	code.ID = id
	return &code, nil
}

// NewCode generates a negotiation discount code.
func NewCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "SOUK-" + raw[:8]
}

// fallbackJudgment is the static, price-conservative result used when the
// model's output cannot be obtained or parsed: low sentiment, a token 5%
// concession, and no willingness to close. The round still terminates in a
// valid, boundable state.
func fallbackJudgment(listed float64) Judgment {
	return Judgment{
		Sentiment:    0.3,
		Tone:         "neutral",
		CounterPrice: listed * 0.95,
		Message:      "Let me think about it. Best I can see right now is a small concession.",
		Accept:       false,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
