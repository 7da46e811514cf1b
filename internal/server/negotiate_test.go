package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/negotiation"
	"github.com/soukhq/souk/internal/store"
)

type stubSessions struct {
	product  store.Product
	sessions map[string]*store.NegotiationSession
	offers   map[string][]store.NegotiationOffer
	codes    int
}

func newStubSessions(product store.Product) *stubSessions {
	return &stubSessions{
		product:  product,
		sessions: map[string]*store.NegotiationSession{},
		offers:   map[string][]store.NegotiationOffer{},
	}
}

func (s *stubSessions) GetProduct(ctx context.Context, id string) (store.Product, error) {
	if id != s.product.ID {
		return store.Product{}, store.ErrNotFound
	}
	return s.product, nil
}

func (s *stubSessions) CreateNegotiationSession(ctx context.Context, userID *string, productID string, originalPrice float64) (store.NegotiationSession, error) {
	sess := store.NegotiationSession{
		ID:            fmt.Sprintf("sess-%d", len(s.sessions)+1),
		UserID:        userID,
		ProductID:     productID,
		OriginalPrice: originalPrice,
		Status:        store.NegotiationStatusNegotiating,
	}
	s.sessions[sess.ID] = &sess
	return sess, nil
}

func (s *stubSessions) GetNegotiationSession(ctx context.Context, id string) (store.NegotiationSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return store.NegotiationSession{}, store.ErrNotFound
	}
	return *sess, nil
}

func (s *stubSessions) ListOffers(ctx context.Context, sessionID string) ([]store.NegotiationOffer, error) {
	return s.offers[sessionID], nil
}

func (s *stubSessions) RecordOffer(ctx context.Context, sessionID string, round int, price float64, message string, sentiment float64) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if sess.Status != store.NegotiationStatusNegotiating {
		return store.ErrSessionConcluded
	}
	sess.OfferedPrice = &price
	sess.Sentiment = sentiment
	s.offers[sessionID] = append(s.offers[sessionID], store.NegotiationOffer{Round: round, Price: price, Message: message})
	return nil
}

func (s *stubSessions) ConcludeNegotiation(ctx context.Context, sessionID, status string, finalPrice *float64, discountCodeID *string) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if sess.Status != store.NegotiationStatusNegotiating {
		return store.ErrSessionConcluded
	}
	sess.Status = status
	sess.FinalPrice = finalPrice
	return nil
}

func (s *stubSessions) CreateDiscountCode(ctx context.Context, d store.DiscountCode) (string, error) {
	s.codes++
	return fmt.Sprintf("code-%d", s.codes), nil
}

type stubJudge struct{ judgment negotiation.Judgment }

func (s stubJudge) Judge(ctx context.Context, in negotiation.JudgeInput) (negotiation.Judgment, error) {
	return s.judgment, nil
}

func negotiateRequest(t *testing.T, body any, uid string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	raw, _ := json.Marshal(body)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/negotiate", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", uid)
	return ctx, rec
}

func testNegotiationHandler(sessions negotiation.Sessions, judgment negotiation.Judgment) *NegotiationHandler {
	engine := negotiation.NewEngine(sessions, stubJudge{judgment}, negotiation.NoopLocker{},
		config.NegotiationConfig{}, log.New(io.Discard, "", 0))
	return &NegotiationHandler{Engine: engine}
}

func TestNegotiateEndpointAcceptsAndMintsCode(t *testing.T) {
	sessions := newStubSessions(store.Product{ID: "p1", Name: "Ceramic Teapot", Price: 100, FloorPrice: 60, IsActive: true})
	handler := testNegotiationHandler(sessions, negotiation.Judgment{
		Sentiment: 0.8, Tone: "polite", CounterPrice: 80, Message: "80 and it's yours", Accept: true,
	})

	ctx, rec := negotiateRequest(t, NegotiateRequest{ProductID: "p1", Message: "would you take 80? it's a gift"}, "user-1")
	if err := handler.negotiate(ctx); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp NegotiateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Status != store.NegotiationStatusAccepted {
		t.Fatalf("expected accepted, got %s", resp.Session.Status)
	}
	if resp.DiscountCode == nil || resp.DiscountCode.DiscountValue != 20 {
		t.Fatalf("expected code worth 20, got %+v", resp.DiscountCode)
	}
}

func TestNegotiateEndpointValidation(t *testing.T) {
	handler := testNegotiationHandler(newStubSessions(store.Product{ID: "p1"}), negotiation.Judgment{})

	ctx, _ := negotiateRequest(t, NegotiateRequest{Message: "hi"}, "user-1")
	if he, ok := handler.negotiate(ctx).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("missing product and session must map to 400")
	}

	ctx, _ = negotiateRequest(t, NegotiateRequest{ProductID: "nope", Message: "deal?"}, "user-1")
	if he, ok := handler.negotiate(ctx).(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("unknown product must map to 404")
	}
}

func TestNegotiateAcceptEndpointConflictOnConcluded(t *testing.T) {
	sessions := newStubSessions(store.Product{ID: "p1", Price: 100, FloorPrice: 60, IsActive: true})
	sess, _ := sessions.CreateNegotiationSession(context.Background(), nil, "p1", 100)
	offered := 90.0
	sessions.sessions[sess.ID].OfferedPrice = &offered
	sessions.sessions[sess.ID].Status = store.NegotiationStatusAccepted

	handler := testNegotiationHandler(sessions, negotiation.Judgment{})
	raw, _ := json.Marshal(NegotiationActionRequest{SessionID: sess.ID})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/negotiate/accept", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.Set("user_id", "user-1")

	if he, ok := handler.accept(ctx).(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Fatalf("concluded session must map to 409")
	}
}

func TestNegotiateDeclineEndpoint(t *testing.T) {
	sessions := newStubSessions(store.Product{ID: "p1", Price: 100, IsActive: true})
	sess, _ := sessions.CreateNegotiationSession(context.Background(), nil, "p1", 100)

	handler := testNegotiationHandler(sessions, negotiation.Judgment{})
	raw, _ := json.Marshal(NegotiationActionRequest{SessionID: sess.ID})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/negotiate/decline", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.decline(ctx); err != nil {
		t.Fatalf("decline: %v", err)
	}
	var resp NegotiateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Status != store.NegotiationStatusRejected {
		t.Fatalf("expected rejected, got %s", resp.Session.Status)
	}
}
