package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

func expectSessionLookup(mock sqlmock.Sqlmock, sessionID, ownerID string) {
	query := regexp.QuoteMeta(`
SELECT id, user_id, metadata, started_at, ended_at FROM conversation_sessions WHERE id=$1
`)
	mock.ExpectQuery(query).WithArgs(sessionID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "metadata", "started_at", "ended_at"}).
			AddRow(sessionID, ownerID, []byte(`{}`), time.Now(), nil))
}

func chatContext(t *testing.T, path string, payload ChatRequest, uid string) echo.Context {
	t.Helper()
	body, _ := json.Marshal(payload)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	if uid != "" {
		ctx.Set("user_id", uid)
	}
	return ctx
}

func TestChatRejectsForeignSession(t *testing.T) {
	st, mock, cleanup := setupAuthStore(t)
	defer cleanup()
	expectSessionLookup(mock, "sess-1", "owner-1")

	handler := &ChatHandler{Store: st}
	ctx := chatContext(t, "/api/chat", ChatRequest{Message: "hi", SessionID: "sess-1"}, "intruder-9")

	err := handler.chat(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign session, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChatRejectsOwnedSessionForAnonymousCaller(t *testing.T) {
	st, mock, cleanup := setupAuthStore(t)
	defer cleanup()
	expectSessionLookup(mock, "sess-1", "owner-1")

	handler := &ChatHandler{Store: st}
	ctx := chatContext(t, "/api/chat", ChatRequest{Message: "hi", SessionID: "sess-1"}, "")

	err := handler.chat(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an anonymous caller, got %v", err)
	}
}

func TestEndSessionRejectsForeignSession(t *testing.T) {
	st, mock, cleanup := setupAuthStore(t)
	defer cleanup()
	expectSessionLookup(mock, "sess-1", "owner-1")

	handler := &ChatHandler{Store: st}
	ctx := chatContext(t, "/api/chat/end", ChatRequest{SessionID: "sess-1"}, "intruder-9")

	err := handler.endSession(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign session, got %v", err)
	}
}
