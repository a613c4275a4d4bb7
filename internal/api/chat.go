package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/virtual-companion/internal/companion"
	"github.com/ashureev/virtual-companion/internal/domain"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Message             string             `json:"message"`
	Name                string             `json:"name"`
	ConversationHistory []domain.Turn      `json:"conversationHistory"`
	ContextMode         domain.ContextMode `json:"contextMode"`
	ImageURL            string             `json:"imageUrl,omitempty"`
}

func newChatResponse(res *companion.ChatResult) chatResponse {
	return chatResponse{
		Message:             res.Message,
		Name:                res.Name,
		ConversationHistory: res.ConversationHistory,
		ContextMode:         res.ContextMode,
		ImageURL:            res.ImageURL,
	}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, "Không thể gửi tin nhắn", &domain.ValidationError{Field: "body", Message: "nội dung yêu cầu không hợp lệ"})
		return
	}

	res, err := h.svc.Chat(r.Context(), companion.ChatRequest{
		Message:   req.Message,
		Channel:   "chat_http",
		RequestID: requestID(r),
	})
	if err != nil {
		h.writeError(w, r, "Không thể gửi tin nhắn", err)
		return
	}

	JSON(w, http.StatusOK, newChatResponse(res))
}

// ChatWithImage handles POST /chat-with-image. The image is stored before
// the model call and removed again if the exchange fails.
func (h *Handler) ChatWithImage(w http.ResponseWriter, r *http.Request) {
	const summary = "Không thể xử lý hình ảnh"

	if h.uploads == nil {
		h.writeError(w, r, summary, errors.New("image uploads are disabled"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, r, summary, tooLarge(h.opts.MaxUploadBytes))
			return
		}
		h.writeError(w, r, summary, &domain.ValidationError{Field: "image", Message: "vui lòng chọn một hình ảnh"})
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", "request_id", requestID(r), "error", err)
		}
	}()

	img, ext, err := h.readImage(r)
	if err != nil {
		h.writeError(w, r, summary, err)
		return
	}

	name, err := h.uploads.Save(img.Data, ext)
	if err != nil {
		h.writeError(w, r, summary, err)
		return
	}

	res, err := h.svc.Chat(r.Context(), companion.ChatRequest{
		Message:   r.FormValue("message"),
		Image:     img,
		ImageURL:  h.uploads.URL(name),
		Channel:   "chat_image",
		RequestID: requestID(r),
	})
	if err != nil {
		if rmErr := h.uploads.Remove(name); rmErr != nil {
			h.logger.Warn("Failed to remove orphaned upload", "file", name, "error", rmErr)
		}
		h.writeError(w, r, summary, err)
		return
	}

	JSON(w, http.StatusOK, newChatResponse(res))
}
