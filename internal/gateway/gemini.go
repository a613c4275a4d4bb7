package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-pro"

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey    string
	ModelName string
	// Timeout bounds a single Generate call. Zero means no timeout.
	Timeout time.Duration
}

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	logger.Info("Gemini client initialized", "model", cfg.ModelName, "timeout", cfg.Timeout)

	return &GeminiClient{
		client:    client,
		modelName: cfg.ModelName,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Generate sends the prompt, plus the image when present, as a single user turn.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	res, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Gemini reply received",
		"model", c.modelName,
		"with_image", image != nil,
		"prompt_length", len(prompt),
		"reply_length", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}
