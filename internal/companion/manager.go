// Package companion owns the persona state and builds model-ready prompts.
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/internal/store"
)

// Manager owns the process-wide persona and its conversation history.
//
// Every mutation runs under mu and is persisted before it becomes visible,
// so the repository always holds the last completed mutation and concurrent
// writers never race on the store.
type Manager struct {
	mu       sync.Mutex
	persona  domain.Persona
	repo     store.Repository
	estimate TokenEstimator
	logger   *slog.Logger
}

// NewManager creates a manager from the persisted state in repo, falling
// back to initial when nothing has been saved yet.
func NewManager(ctx context.Context, repo store.Repository, initial domain.Persona, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	persona := initial.Clone()
	saved, err := repo.Load(ctx)
	if err != nil {
		return nil, &domain.IOError{Op: "load persona", Err: err}
	}
	if saved != nil {
		persona = saved.Clone()
		logger.Info("Persona restored from store", "name", persona.Name, "history", len(persona.ConversationHistory), "mode", persona.ContextMode)
	} else {
		logger.Info("No persisted persona, using initial persona", "name", persona.Name)
	}
	persona.Normalize()

	return &Manager{
		persona:  persona,
		repo:     repo,
		estimate: EstimateTokens,
		logger:   logger,
	}, nil
}

// SetTokenEstimator replaces the token heuristic used by BuildPrompt.
func (m *Manager) SetTokenEstimator(fn TokenEstimator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = EstimateTokens
	}
	m.estimate = fn
}

// Snapshot returns a deep copy of the current persona.
func (m *Manager) Snapshot() domain.Persona {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persona.Clone()
}

// Configure validates and applies a partial update, resetting the history.
// On any error the persona is left untouched.
func (m *Manager) Configure(ctx context.Context, update domain.PersonaUpdate) (domain.Persona, error) {
	if err := update.Validate(); err != nil {
		return domain.Persona{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := update.ApplyTo(m.persona)
	if err := m.commitLocked(ctx, next); err != nil {
		return domain.Persona{}, err
	}
	m.logger.Info("Persona configured", "name", next.Name, "age", next.Age, "interests", len(next.Interests))
	return next.Clone(), nil
}

// ChangeContextMode switches the prompt template. History is kept.
func (m *Manager) ChangeContextMode(ctx context.Context, mode string) (domain.ContextMode, error) {
	parsed, err := domain.ParseContextMode(mode)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.persona.Clone()
	next.ContextMode = parsed
	if err := m.commitLocked(ctx, next); err != nil {
		return "", err
	}
	m.logger.Info("Context mode changed", "mode", parsed)
	return parsed, nil
}

// AppendAndTrim appends turns and evicts the oldest ones beyond
// 2 × MaxContextLength. It returns a copy of the resulting history.
func (m *Manager) AppendAndTrim(ctx context.Context, turns ...domain.Turn) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.persona.Clone()
	for _, t := range turns {
		t.Message = domain.TruncateMessage(t.Message)
		next.ConversationHistory = append(next.ConversationHistory, t)
	}
	if limit := next.HistoryCap(); len(next.ConversationHistory) > limit {
		evicted := len(next.ConversationHistory) - limit
		next.ConversationHistory = append([]domain.Turn{}, next.ConversationHistory[evicted:]...)
		m.logger.Debug("History trimmed", "evicted", evicted, "cap", limit)
	}

	if err := m.commitLocked(ctx, next); err != nil {
		return nil, err
	}
	return append([]domain.Turn{}, next.ConversationHistory...), nil
}

// ResetConversation empties the history and keeps the persona settings.
func (m *Manager) ResetConversation(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.persona.Clone()
	next.ConversationHistory = []domain.Turn{}
	if err := m.commitLocked(ctx, next); err != nil {
		return err
	}
	m.logger.Info("Conversation reset")
	return nil
}

// BuildPrompt renders the prompt for userMessage against the current state.
// It does not mutate the stored history.
func (m *Manager) BuildPrompt(userMessage string, hasImage bool) Prompt {
	_, prompt := m.preparePrompt(userMessage, hasImage)
	return prompt
}

// preparePrompt builds a prompt and returns the persona snapshot it was
// built from.
func (m *Manager) preparePrompt(userMessage string, hasImage bool) (domain.Persona, Prompt) {
	m.mu.Lock()
	persona := m.persona.Clone()
	estimate := m.estimate
	m.mu.Unlock()

	return persona, BuildPrompt(persona, userMessage, hasImage, estimate)
}

// commitLocked persists next and only then makes it the current state.
func (m *Manager) commitLocked(ctx context.Context, next domain.Persona) error {
	if err := m.repo.Save(ctx, &next); err != nil {
		m.logger.Error("Failed to persist persona", "error", err)
		return &domain.IOError{Op: "save persona", Err: fmt.Errorf("persist state: %w", err)}
	}
	m.persona = next
	return nil
}
