package companion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/virtual-companion/internal/chatlog"
	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/internal/gateway"
)

// imagePlaceholder is stored as the user turn when an image arrives without text.
const imagePlaceholder = "[Đã gửi một hình ảnh]"

// ChatRequest is one inbound user message.
type ChatRequest struct {
	Message string
	// Image and ImageURL are set together for image chats.
	Image     *gateway.Image
	ImageURL  string
	Channel   string
	RequestID string
}

// ChatResult is the outcome of a successful exchange.
type ChatResult struct {
	Message             string
	Name                string
	ConversationHistory []domain.Turn
	ContextMode         domain.ContextMode
	ImageURL            string
}

// Service runs a chat exchange: prompt, model call, history update.
type Service struct {
	mgr     *Manager
	gateway gateway.Gateway
	log     chatlog.Logger
	logger  *slog.Logger
}

// NewService wires a manager to a model gateway.
func NewService(mgr *Manager, gw gateway.Gateway, transcript chatlog.Logger, logger *slog.Logger) *Service {
	if transcript == nil {
		transcript = chatlog.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		mgr:     mgr,
		gateway: gw,
		log:     transcript,
		logger:  logger,
	}
}

// Manager returns the underlying context manager.
func (s *Service) Manager() *Manager {
	return s.mgr
}

// Chat sends a message and records the exchange. A gateway failure returns
// a GatewayError and leaves the history unchanged.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	hasImage := req.Image != nil
	if strings.TrimSpace(req.Message) == "" && !hasImage {
		return nil, &domain.ValidationError{Field: "message", Message: "tin nhắn không được để trống"}
	}
	if req.Channel == "" {
		req.Channel = "chat_http"
	}

	persona, prompt := s.mgr.preparePrompt(req.Message, hasImage)

	s.logger.Info("Chat request",
		"request_id", req.RequestID,
		"channel", req.Channel,
		"mode", prompt.Mode,
		"message_length", len(prompt.UserMessage),
		"with_image", hasImage,
		"window_turns", len(prompt.Window),
		"window_tokens", prompt.Tokens,
	)
	s.log.Log(chatlog.Event{
		RequestID: req.RequestID,
		Channel:   req.Channel,
		Direction: "inbound",
		EventType: "user_message",
		Sender:    domain.UserSender,
		Content:   prompt.UserMessage,
		ImageURL:  req.ImageURL,
		Mode:      string(prompt.Mode),
	})

	start := time.Now()
	reply, err := s.gateway.Generate(ctx, prompt.Text, req.Image)
	if err != nil {
		s.logger.Error("Model gateway failed", "request_id", req.RequestID, "error", err)
		s.log.Log(chatlog.Event{
			RequestID: req.RequestID,
			Channel:   req.Channel,
			Direction: "outbound",
			EventType: "gateway_error",
			Content:   err.Error(),
		})
		return nil, &domain.GatewayError{Err: err}
	}

	userText := prompt.UserMessage
	if strings.TrimSpace(userText) == "" {
		userText = imagePlaceholder
	}
	history, err := s.mgr.AppendAndTrim(ctx,
		domain.Turn{Sender: domain.UserSender, Message: userText, ImageURL: req.ImageURL},
		domain.Turn{Sender: persona.Name, Message: reply},
	)
	if err != nil {
		return nil, err
	}

	s.log.Log(chatlog.Event{
		RequestID: req.RequestID,
		Channel:   req.Channel,
		Direction: "outbound",
		EventType: "persona_message",
		Sender:    persona.Name,
		Content:   reply,
		Mode:      string(prompt.Mode),
		Meta: map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})

	return &ChatResult{
		Message:             reply,
		Name:                persona.Name,
		ConversationHistory: history,
		ContextMode:         prompt.Mode,
		ImageURL:            req.ImageURL,
	}, nil
}
