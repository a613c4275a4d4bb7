package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-process Gateway for development and tests.
type Mock struct {
	mu         sync.Mutex
	reply      func(prompt string, image *Image) (string, error)
	calls      int
	lastImage  *Image
	lastPrompt string
}

// NewMock returns a Mock with a canned in-character reply.
func NewMock() *Mock {
	return NewMockFunc(func(prompt string, _ *Image) (string, error) {
		return fmt.Sprintf("Anh nghe nè. Em vừa nói %d ký tự, kể thêm cho anh nghe đi.", len([]rune(prompt))), nil
	})
}

// NewMockReply returns a Mock that always answers with reply.
func NewMockReply(reply string) *Mock {
	return NewMockFunc(func(string, *Image) (string, error) { return reply, nil })
}

// NewMockError returns a Mock whose calls always fail with err.
func NewMockError(err error) *Mock {
	return NewMockFunc(func(string, *Image) (string, error) { return "", err })
}

// NewMockFunc returns a Mock backed by fn.
func NewMockFunc(fn func(prompt string, image *Image) (string, error)) *Mock {
	return &Mock{reply: fn}
}

// Generate implements Gateway.
func (m *Mock) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	m.lastPrompt = prompt
	m.lastImage = image
	fn := m.reply
	m.mu.Unlock()
	return fn(prompt, image)
}

// LastPrompt returns the prompt of the most recent call.
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastImage returns the image of the most recent call.
func (m *Mock) LastImage() *Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastImage
}

// Calls returns the number of Generate calls.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
