// Package memory replays the bounded conversation window fed back into the
// agent loop on each turn.
package memory

import (
	"context"
	"log"
	"regexp"

	"github.com/soukhq/souk/internal/llm"
	"github.com/soukhq/souk/internal/store"
)

// codePattern matches negotiation discount codes embedded in past assistant
// replies. They are scrubbed before replay so the model cannot re-offer a code
// that has already been applied.
var codePattern = regexp.MustCompile(`\bSOUK-[A-Z0-9]{8}\b`)

const codePlaceholder = "[discount code withheld]"

// Turns is the slice of the store the loader needs.
type Turns interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]store.ConversationTurn, error)
}

// Loader loads and sanitizes conversation history.
type Loader struct {
	turns  Turns
	window int
	logger *log.Logger
}

// NewLoader builds a Loader with a fixed replay window.
func NewLoader(turns Turns, window int, logger *log.Logger) *Loader {
	if window <= 0 {
		window = 20
	}
	return &Loader{turns: turns, window: window, logger: logger}
}

// History returns the session's last turns as role-tagged messages,
// oldest-first. A load failure degrades to an empty history so the new turn is
// never blocked.
func (l *Loader) History(ctx context.Context, sessionID string) []llm.Message {
	if sessionID == "" {
		return nil
	}
	turns, err := l.turns.RecentTurns(ctx, sessionID, l.window)
	if err != nil {
		l.logger.Printf("history load failed for session %s, starting fresh: %v", sessionID, err)
		return nil
	}
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		content := t.Content
		if t.Role == "assistant" {
			content = Sanitize(content)
		}
		out = append(out, llm.Message{Role: t.Role, Content: content})
	}
	return out
}

// Sanitize replaces discount-code-shaped tokens with a neutral placeholder.
func Sanitize(content string) string {
	return codePattern.ReplaceAllString(content, codePlaceholder)
}
