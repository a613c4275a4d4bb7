package api

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/web"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return md
}

// renderMarkdown turns a chat message into HTML. Raw HTML in the source is
// escaped by goldmark; on a conversion error the text is shown escaped.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text)) //nolint:gosec // escaped above
	}
	return template.HTML(buf.String()) //nolint:gosec // goldmark output, unsafe HTML disabled
}

type modeOption struct {
	Value    string
	Label    string
	Selected bool
}

type pageMessage struct {
	IsUser   bool
	Sender   string
	HTML     template.HTML
	ImageURL string
}

type pageData struct {
	Persona          domain.Persona
	Modes            []modeOption
	ModeLabel        string
	Messages         []pageMessage
	MaxMessageLength int
}

func parsePage() (*template.Template, error) {
	tmpl, err := template.ParseFS(web.Templates(), "index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return tmpl, nil
}

func buildPageData(p domain.Persona) pageData {
	modes := make([]modeOption, 0, len(domain.ContextModes))
	for _, m := range domain.ContextModes {
		modes = append(modes, modeOption{
			Value:    string(m),
			Label:    m.Label(),
			Selected: m == p.ContextMode,
		})
	}

	messages := make([]pageMessage, 0, len(p.ConversationHistory))
	for _, turn := range p.ConversationHistory {
		isUser := turn.Sender == domain.UserSender
		sender := turn.Sender
		if isUser {
			sender = "Bạn"
		}
		messages = append(messages, pageMessage{
			IsUser:   isUser,
			Sender:   sender,
			HTML:     renderMarkdown(turn.Message),
			ImageURL: turn.ImageURL,
		})
	}

	return pageData{
		Persona:          p,
		Modes:            modes,
		ModeLabel:        p.ContextMode.Label(),
		Messages:         messages,
		MaxMessageLength: domain.MaxMessageLength,
	}
}

// Index handles GET / by rendering the chat page for the current persona.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.page.ExecuteTemplate(&buf, "index.html", buildPageData(h.svc.Manager().Snapshot())); err != nil {
		h.logger.Error("Failed to render page", "request_id", requestID(r), "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("Failed to write page", "error", err)
	}
}
