package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soukhq/souk/internal/agent"
	"github.com/soukhq/souk/internal/capability"
	"github.com/soukhq/souk/internal/store"
)

// ChatHandler serves the conversational surface. Anonymous shoppers may chat;
// account-bound capabilities refuse inside the loop when the actor is unknown.
type ChatHandler struct {
	Store *store.Store
	Agent *agent.Agent
}

func (h *ChatHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withOptionalAuth(next, secret) })
	g.POST("", h.chat)
	g.POST("/end", h.endSession)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	ctx := c.Request().Context()
	uid := userID(c)

	sessionID := req.SessionID
	switch {
	case sessionID != "":
		if err := h.verifySessionAccess(ctx, sessionID, uid); err != nil {
			return err
		}
	case uid != "":
		// continue the shopper's latest open session when one exists
		if id, err := h.Store.LatestOpenSession(ctx, uid); err == nil && id != "" {
			sessionID = id
		}
	}
	if sessionID == "" {
		var owner *string
		if uid != "" {
			owner = &uid
		}
		id, err := h.Store.CreateConversationSession(ctx, owner, nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		sessionID = id
	}

	if _, err := h.Store.AppendTurn(ctx, sessionID, "user", req.Message, nil); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	reply, err := h.Agent.Respond(ctx, capability.Actor{UserID: uid}, sessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "assistant unavailable")
	}

	if _, err := h.Store.AppendTurn(ctx, sessionID, "assistant", reply.Text, reply.Actions); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := ChatResponse{
		SessionID: sessionID,
		Message:   ChatMessage{Role: "assistant", Content: reply.Text},
	}
	for _, a := range reply.Actions {
		resp.Actions = append(resp.Actions, ChatAction{Name: a.Name, Args: a.Args})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) endSession(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	ctx := c.Request().Context()
	if err := h.verifySessionAccess(ctx, req.SessionID, userID(c)); err != nil {
		return err
	}
	if err := h.Store.EndConversationSession(ctx, req.SessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// verifySessionAccess resolves a caller-presented session id. User-owned
// sessions are only visible to their owner; an ownership mismatch reads the
// same as a missing session.
func (h *ChatHandler) verifySessionAccess(ctx context.Context, sessionID, uid string) error {
	sess, err := h.Store.GetConversationSession(ctx, sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	if sess.UserID != nil && (uid == "" || *sess.UserID != uid) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	return nil
}
