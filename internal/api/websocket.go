package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/virtual-companion/internal/companion"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsInbound is a client frame on /ws/chat.
type wsInbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsReply is sent back after a successful exchange.
type wsReply struct {
	Type string `json:"type"`
	chatResponse
}

type wsError struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ChatSocket handles GET /ws/chat. Each "chat" frame runs one exchange and
// is answered with a "reply" or "error" frame; frames are handled in order.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	h.logger.Info("WebSocket connection request", "request_id", reqID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.AllowedOrigins,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "request_id", reqID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "request_id", reqID, "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.opts.MaxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "request_id", reqID)
			} else {
				h.logger.Warn("WebSocket read error", "request_id", reqID, "error", err)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.writeFrame(ctx, ws, wsError{Type: "error", Error: "invalid_message"}); err != nil {
				return
			}
			continue
		}

		var out interface{}
		switch msg.Type {
		case "ping":
			out = map[string]string{"type": "pong"}
		case "chat":
			res, err := h.svc.Chat(ctx, companion.ChatRequest{
				Message:   msg.Message,
				Channel:   "chat_ws",
				RequestID: reqID,
			})
			if err != nil {
				out = wsError{Type: "error", Error: "Không thể gửi tin nhắn", Details: err.Error()}
			} else {
				out = wsReply{Type: "reply", chatResponse: newChatResponse(res)}
			}
		default:
			out = wsError{Type: "error", Error: "unknown_type", Details: msg.Type}
		}

		if err := h.writeFrame(ctx, ws, out); err != nil {
			h.logger.Debug("WebSocket write error", "request_id", reqID, "error", err)
			return
		}
	}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, payload)
}
