package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soukhq/souk/internal/negotiation"
	"github.com/soukhq/souk/internal/store"
)

// NegotiationHandler exposes the negotiation engine directly, outside the chat
// loop, for storefront UIs that drive haggling themselves.
type NegotiationHandler struct {
	Engine *negotiation.Engine
}

func (h *NegotiationHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.negotiate)
	g.POST("/accept", h.accept)
	g.POST("/decline", h.decline)
}

func (h *NegotiationHandler) negotiate(c echo.Context) error {
	var req NegotiateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" || (req.ProductID == "" && req.SessionID == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "message and product_id (or session_id) are required")
	}
	uid := userID(c)
	outcome, err := h.Engine.Negotiate(c.Request().Context(), &uid, req.ProductID, req.SessionID, req.Message)
	if err != nil {
		return negotiationError(err)
	}
	return c.JSON(http.StatusOK, negotiateResponse(outcome))
}

func (h *NegotiationHandler) accept(c echo.Context) error {
	var req NegotiationActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	outcome, err := h.Engine.AcceptOffer(c.Request().Context(), req.SessionID)
	if err != nil {
		return negotiationError(err)
	}
	return c.JSON(http.StatusOK, negotiateResponse(outcome))
}

func (h *NegotiationHandler) decline(c echo.Context) error {
	var req NegotiationActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	sess, err := h.Engine.Decline(c.Request().Context(), req.SessionID)
	if err != nil {
		return negotiationError(err)
	}
	return c.JSON(http.StatusOK, NegotiateResponse{
		Message: "negotiation closed",
		Session: sessionView(sess),
	})
}

func sessionView(s store.NegotiationSession) NegotiationSessionView {
	return NegotiationSessionView{
		ID:            s.ID,
		Status:        s.Status,
		OriginalPrice: s.OriginalPrice,
		OfferedPrice:  s.OfferedPrice,
		FinalPrice:    s.FinalPrice,
	}
}

func negotiateResponse(o negotiation.Outcome) NegotiateResponse {
	return NegotiateResponse{
		Message:      o.Message,
		Session:      sessionView(o.Session),
		Sentiment:    o.Sentiment,
		Accepted:     o.Accepted,
		DiscountCode: discountResponse(o.Code),
	}
}

func negotiationError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrSessionConcluded):
		return echo.NewHTTPError(http.StatusConflict, "negotiation already concluded")
	case errors.Is(err, negotiation.ErrNoOffer):
		return echo.NewHTTPError(http.StatusConflict, "no offer to accept yet")
	case errors.Is(err, negotiation.ErrBusy):
		return echo.NewHTTPError(http.StatusTooManyRequests, "another offer is being processed")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
