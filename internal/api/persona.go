package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// looseString accepts a JSON string, number or null. Forms send age as text
// while scripted clients tend to send a number.
type looseString struct {
	set   bool
	value string
}

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s.value); err != nil {
			return err
		}
		s.set = true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	s.value = n.String()
	s.set = true
	return nil
}

func (s looseString) ptr() *string {
	if !s.set {
		return nil
	}
	v := s.value
	return &v
}

type configureRequest struct {
	Name        looseString `json:"name"`
	Personality looseString `json:"personality"`
	Interests   looseString `json:"interests"`
	Age         looseString `json:"age"`
	Avatar      looseString `json:"avatar"`
}

func (c configureRequest) update() domain.PersonaUpdate {
	return domain.PersonaUpdate{
		Name:        c.Name.ptr(),
		Personality: c.Personality.ptr(),
		Interests:   c.Interests.ptr(),
		Age:         c.Age.ptr(),
		Avatar:      c.Avatar.ptr(),
	}
}

// decodeConfigure reads a persona update from a JSON or form-encoded body.
func (h *Handler) decodeConfigure(r *http.Request) (domain.PersonaUpdate, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return domain.PersonaUpdate{}, &domain.ValidationError{Field: "body", Message: "dữ liệu biểu mẫu không hợp lệ"}
		}
		field := func(key string) *string {
			if _, ok := r.PostForm[key]; !ok {
				return nil
			}
			v := r.PostForm.Get(key)
			return &v
		}
		return domain.PersonaUpdate{
			Name:        field("name"),
			Personality: field("personality"),
			Interests:   field("interests"),
			Age:         field("age"),
			Avatar:      field("avatar"),
		}, nil
	}

	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.PersonaUpdate{}, &domain.ValidationError{Field: "body", Message: "nội dung yêu cầu không hợp lệ"}
	}
	return req.update(), nil
}

// Configure handles POST /configure.
func (h *Handler) Configure(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)

	update, err := h.decodeConfigure(r)
	if err != nil {
		h.writeError(w, r, "Không thể cập nhật cấu hình", err)
		return
	}

	persona, err := h.svc.Manager().Configure(r.Context(), update)
	if err != nil {
		h.writeError(w, r, "Không thể cập nhật cấu hình", err)
		return
	}

	h.logger.Info("Persona configured", "request_id", requestID(r), "name", persona.Name, "age", persona.Age)
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Cấu hình đã được cập nhật thành công",
		"boyfriend": persona,
	})
}

// GetPersona handles GET /api/persona.
func (h *Handler) GetPersona(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.svc.Manager().Snapshot())
}

// ResetConversation handles POST /reset-conversation.
func (h *Handler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Manager().ResetConversation(r.Context()); err != nil {
		h.writeError(w, r, "Không thể xoá cuộc trò chuyện", err)
		return
	}
	h.logger.Info("Conversation reset", "request_id", requestID(r))
	JSON(w, http.StatusOK, map[string]string{"message": "Đã xoá lịch sử trò chuyện"})
}

type changeContextRequest struct {
	Mode string `json:"mode"`
}

// ChangeContext handles POST /change-context.
func (h *Handler) ChangeContext(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)

	var req changeContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, "Không thể đổi chế độ", &domain.ValidationError{Field: "body", Message: "nội dung yêu cầu không hợp lệ"})
		return
	}

	mode, err := h.svc.Manager().ChangeContextMode(r.Context(), strings.TrimSpace(req.Mode))
	if err != nil {
		h.writeError(w, r, "Không thể đổi chế độ", err)
		return
	}

	h.logger.Info("Context mode changed", "request_id", requestID(r), "mode", mode)
	JSON(w, http.StatusOK, map[string]string{
		"message": "Đã chuyển sang chế độ " + mode.Label(),
		"mode":    string(mode),
	})
}
