package domain

import "strings"

// ContextMode selects the prompt template used for a conversation.
type ContextMode string

const (
	// ContextModeDefault is ordinary companion chat.
	ContextModeDefault ContextMode = "default"
	// ContextModeAstrology asks for a structured birth chart reading.
	ContextModeAstrology ContextMode = "astrology"
	// ContextModeTarot is accepted but renders the default template.
	ContextModeTarot ContextMode = "tarot"
	// ContextModePsychology is accepted but renders the default template.
	ContextModePsychology ContextMode = "psychology"
)

// ContextModes lists every accepted mode in display order.
var ContextModes = []ContextMode{
	ContextModeDefault,
	ContextModeAstrology,
	ContextModeTarot,
	ContextModePsychology,
}

// ParseContextMode validates a mode name.
func ParseContextMode(s string) (ContextMode, error) {
	mode := ContextMode(strings.TrimSpace(s))
	if !mode.Valid() {
		return "", &ValidationError{Field: "mode", Message: "chế độ không hợp lệ: " + s}
	}
	return mode, nil
}

// Valid reports whether m is one of the known modes.
func (m ContextMode) Valid() bool {
	for _, known := range ContextModes {
		if m == known {
			return true
		}
	}
	return false
}

// Label returns the human-readable mode name shown in the chat page.
func (m ContextMode) Label() string {
	switch m {
	case ContextModeAstrology:
		return "Chế độ bản đồ sao"
	case ContextModeTarot:
		return "Chế độ đọc bài Tarot"
	case ContextModePsychology:
		return "Chế độ tư vấn tâm lý"
	default:
		return "Trò chuyện thông thường"
	}
}
