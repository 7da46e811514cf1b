package server

import "github.com/soukhq/souk/internal/store"

// HTTPError is the error envelope returned by the unified error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatAction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Message   ChatMessage  `json:"message"`
	Actions   []ChatAction `json:"actions,omitempty"`
}

type NegotiateRequest struct {
	ProductID string `json:"product_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type NegotiationSessionView struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	OriginalPrice float64  `json:"original_price"`
	OfferedPrice  *float64 `json:"offered_price,omitempty"`
	FinalPrice    *float64 `json:"final_price,omitempty"`
}

type NegotiateResponse struct {
	Message      string                 `json:"message"`
	Session      NegotiationSessionView `json:"session"`
	Sentiment    float64                `json:"sentiment"`
	Accepted     bool                   `json:"accepted"`
	DiscountCode *DiscountResponse      `json:"discount_code,omitempty"`
}

type NegotiationActionRequest struct {
	SessionID string `json:"session_id"`
}

type DiscountResponse struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
	ExpiresAt     string  `json:"expires_at,omitempty"`
}

func discountResponse(d *store.DiscountCode) *DiscountResponse {
	if d == nil {
		return nil
	}
	return &DiscountResponse{
		Code:          d.Code,
		DiscountType:  d.DiscountType,
		DiscountValue: d.DiscountValue,
		ExpiresAt:     d.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
