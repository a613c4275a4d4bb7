package companion

import (
	"strings"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// Prompt is a fully interpolated prompt plus the context window it used.
type Prompt struct {
	Text        string
	UserMessage string
	Mode        domain.ContextMode
	Window      []domain.Turn
	// Tokens is the estimate for the rendered window plus the user message.
	Tokens int
}

// TokenBudget is the largest estimate a context window may reach.
const TokenBudget = domain.TokenLimit - domain.ResponseTokenReserve

// BuildPrompt renders a prompt for persona. The window starts as the last
// MaxContextLength turns and drops its oldest turn until the estimate fits
// TokenBudget. Only the working copy shrinks; persona is not modified.
func BuildPrompt(persona domain.Persona, userMessage string, hasImage bool, estimate TokenEstimator) Prompt {
	if estimate == nil {
		estimate = EstimateTokens
	}
	userMessage = domain.TruncateMessage(userMessage)

	window := recentTurns(persona.ConversationHistory, persona.MaxContextLength)
	history := renderHistory(window)
	tokens := estimate(history + userMessage)
	for tokens > TokenBudget && len(window) > 0 {
		window = window[1:]
		history = renderHistory(window)
		tokens = estimate(history + userMessage)
	}

	text := templateFor(persona.ContextMode)(promptInput{
		Persona:     persona,
		History:     history,
		UserMessage: userMessage,
		HasImage:    hasImage,
	})

	return Prompt{
		Text:        text,
		UserMessage: userMessage,
		Mode:        persona.ContextMode,
		Window:      append([]domain.Turn{}, window...),
		Tokens:      tokens,
	}
}

func recentTurns(history []domain.Turn, n int) []domain.Turn {
	if n <= 0 {
		return nil
	}
	if n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}

func renderHistory(turns []domain.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Line()
	}
	return strings.Join(lines, "\n")
}
