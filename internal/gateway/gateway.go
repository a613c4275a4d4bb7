// Package gateway talks to the generative language model.
package gateway

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("model returned empty text")

// Image is an attachment sent alongside a prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Gateway turns a prompt (and optional image) into a reply.
type Gateway interface {
	Generate(ctx context.Context, prompt string, image *Image) (string, error)
}

// Ensure implementations satisfy Gateway.
var (
	_ Gateway = (*GeminiClient)(nil)
	_ Gateway = (*Mock)(nil)
)
