// Package domain contains core domain types for the companion application.
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// UserSender marks turns written by the person chatting with the persona.
	UserSender = "User"
	// MaxMessageLength is the maximum number of characters kept from a message.
	MaxMessageLength = 1000
	// TokenLimit is the approximate model context budget in tokens.
	TokenLimit = 8000
	// ResponseTokenReserve is the part of TokenLimit kept free for the reply.
	ResponseTokenReserve = 1000
	// DefaultMaxContextLength is the default number of turns used as prompt context.
	DefaultMaxContextLength = 100
)

// Turn is one message unit in the conversation history.
type Turn struct {
	Sender   string `json:"sender" yaml:"sender"`
	Message  string `json:"message" yaml:"message"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
}

// Line renders the turn the way it appears in a prompt.
func (t Turn) Line() string {
	return t.Sender + ": " + t.Message
}

// Persona is the configurable companion identity and its conversation state.
type Persona struct {
	Name                string      `json:"name" yaml:"name"`
	Personality         string      `json:"personality" yaml:"personality"`
	Interests           []string    `json:"interests" yaml:"interests"`
	Age                 int         `json:"age" yaml:"age"`
	Avatar              string      `json:"avatar" yaml:"avatar"`
	ContextMode         ContextMode `json:"contextMode" yaml:"contextMode"`
	ConversationHistory []Turn      `json:"conversationHistory" yaml:"conversationHistory"`
	MaxContextLength    int         `json:"maxContextLength" yaml:"maxContextLength"`
}

// DefaultPersona returns the persona used when no persisted state exists.
func DefaultPersona() Persona {
	return Persona{
		Name:        "Anh Trí",
		Personality: "Ấm áp, quan tâm, thông minh, hài hước, đam mê thể thao và công nghệ",
		Interests:   []string{"thể thao", "công nghệ", "âm nhạc", "du lịch", "đọc sách", "nấu ăn"},
		Age:         23,
		Avatar:      "/static/avatar.svg",
		ContextMode: ContextModeDefault,
		// Non-nil so the JSON document always carries an array.
		ConversationHistory: []Turn{},
		MaxContextLength:    DefaultMaxContextLength,
	}
}

// HistoryCap returns the maximum number of stored turns.
func (p *Persona) HistoryCap() int {
	return 2 * p.MaxContextLength
}

// Clone returns a deep copy of the persona.
func (p Persona) Clone() Persona {
	out := p
	if p.Interests != nil {
		out.Interests = append([]string(nil), p.Interests...)
	}
	out.ConversationHistory = append([]Turn{}, p.ConversationHistory...)
	return out
}

// Normalize fills zero values left by older or hand-written state documents.
func (p *Persona) Normalize() {
	def := DefaultPersona()
	if strings.TrimSpace(p.Name) == "" {
		p.Name = def.Name
	}
	if p.MaxContextLength <= 0 {
		p.MaxContextLength = def.MaxContextLength
	}
	if p.ContextMode == "" {
		p.ContextMode = ContextModeDefault
	}
	if p.ConversationHistory == nil {
		p.ConversationHistory = []Turn{}
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if n := p.HistoryCap(); len(p.ConversationHistory) > n {
		p.ConversationHistory = append([]Turn{}, p.ConversationHistory[len(p.ConversationHistory)-n:]...)
	}
}

// TruncateMessage cuts s to at most MaxMessageLength characters.
func TruncateMessage(s string) string {
	if utf8.RuneCountInString(s) <= MaxMessageLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxMessageLength])
}
