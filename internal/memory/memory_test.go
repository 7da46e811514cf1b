package memory

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/soukhq/souk/internal/store"
)

type fakeTurns struct {
	turns []store.ConversationTurn
	err   error
}

func (f *fakeTurns) RecentTurns(ctx context.Context, sessionID string, limit int) ([]store.ConversationTurn, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.turns) {
		return f.turns[len(f.turns)-limit:], nil
	}
	return f.turns, nil
}

func TestSanitizeScrubsDiscountCodes(t *testing.T) {
	cases := map[string]string{
		"Use SOUK-AB12CD34 at checkout":          "Use [discount code withheld] at checkout",
		"SOUK-AB12CD34 and SOUK-ZZ99YY88 both":   "[discount code withheld] and [discount code withheld] both",
		"nothing to scrub here":                  "nothing to scrub here",
		"lowercase souk-ab12cd34 is not a code":  "lowercase souk-ab12cd34 is not a code",
		"SOUK-SHORT is not a code":               "SOUK-SHORT is not a code",
		"prefix XSOUK-AB12CD34 must be left too": "prefix XSOUK-AB12CD34 must be left too",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHistorySanitizesAssistantTurnsOnly(t *testing.T) {
	fake := &fakeTurns{turns: []store.ConversationTurn{
		{Role: "user", Content: "my code is SOUK-AB12CD34, is it valid?"},
		{Role: "assistant", Content: "Your code SOUK-AB12CD34 gives you 30 off."},
	}}
	loader := NewLoader(fake, 20, log.New(io.Discard, "", 0))

	msgs := loader.History(context.Background(), "sess-1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "SOUK-AB12CD34") {
		t.Fatalf("user turns must not be rewritten: %q", msgs[0].Content)
	}
	if strings.Contains(msgs[1].Content, "SOUK-") {
		t.Fatalf("assistant turn leaked a code: %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[1].Content, "[discount code withheld]") {
		t.Fatalf("expected placeholder in assistant turn: %q", msgs[1].Content)
	}
}

func TestHistoryDegradesOnLoadFailure(t *testing.T) {
	loader := NewLoader(&fakeTurns{err: errors.New("db down")}, 20, log.New(io.Discard, "", 0))
	if msgs := loader.History(context.Background(), "sess-1"); msgs != nil {
		t.Fatalf("expected empty history on failure, got %d messages", len(msgs))
	}
}

func TestHistoryEmptySessionID(t *testing.T) {
	loader := NewLoader(&fakeTurns{}, 20, log.New(io.Discard, "", 0))
	if msgs := loader.History(context.Background(), ""); msgs != nil {
		t.Fatalf("expected no history for empty session id")
	}
}
