package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soukhq/souk/internal/store"
)

// DiscountHandler lets the checkout validate and redeem negotiated codes.
type DiscountHandler struct {
	Store *store.Store
}

func (h *DiscountHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("/:code", h.validate)
	g.POST("/:code/redeem", h.redeem)
}

func (h *DiscountHandler) validate(c echo.Context) error {
	d, err := h.Store.GetDiscountCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return discountError(err)
	}
	return c.JSON(http.StatusOK, discountResponse(&d))
}

func (h *DiscountHandler) redeem(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")
	d, err := h.Store.GetDiscountCode(ctx, code)
	if err != nil {
		return discountError(err)
	}
	if d.UserID != nil && *d.UserID != userID(c) {
		return echo.NewHTTPError(http.StatusForbidden, "code belongs to another account")
	}
	if err := h.Store.ConsumeDiscountCode(ctx, code); err != nil {
		return discountError(err)
	}
	return c.JSON(http.StatusOK, discountResponse(&d))
}

func discountError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "unknown code")
	case errors.Is(err, store.ErrCodeExpired):
		return echo.NewHTTPError(http.StatusGone, "code expired")
	case errors.Is(err, store.ErrCodeExhausted):
		return echo.NewHTTPError(http.StatusConflict, "code already used")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
