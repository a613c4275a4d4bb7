//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/virtual-companion/internal/companion"
	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/internal/gateway"
	"github.com/ashureev/virtual-companion/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testEnv struct {
	router  http.Handler
	mgr     *companion.Manager
	repo    *store.MemoryStore
	gw      *gateway.Mock
	uploads string
}

func newTestEnv(t *testing.T, gw *gateway.Mock) *testEnv {
	t.Helper()

	repo := store.NewMemory()
	mgr, err := companion.NewManager(context.Background(), repo, domain.DefaultPersona(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	dir := t.TempDir()
	uploads, err := NewUploadStore(dir)
	if err != nil {
		t.Fatalf("NewUploadStore: %v", err)
	}
	h, err := NewHandler(companion.NewService(mgr, gw, nil, nil), uploads, Options{}, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testEnv{router: r, mgr: mgr, repo: repo, gw: gw, uploads: dir}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func imageForm(t *testing.T, filename string, data []byte, message string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if message != "" {
		if err := mw.WriteField("message", message); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestConfigure(t *testing.T) {
	env := newTestEnv(t, gateway.NewMock())

	w := env.do(t, http.MethodPost, "/configure", "application/json",
		[]byte(`{"name":"Minh","age":30,"interests":"sách, nhạc","avatar":"https://img.test/a.png"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message   string         `json:"message"`
		Boyfriend domain.Persona `json:"boyfriend"`
	}
	decode(t, w, &resp)
	if resp.Message != "Cấu hình đã được cập nhật thành công" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.Boyfriend.Name != "Minh" || resp.Boyfriend.Age != 30 {
		t.Errorf("unexpected persona %+v", resp.Boyfriend)
	}
	if len(resp.Boyfriend.Interests) != 2 || resp.Boyfriend.Interests[1] != "nhạc" {
		t.Errorf("unexpected interests %q", resp.Boyfriend.Interests)
	}
}

func TestConfigureForm(t *testing.T) {
	env := newTestEnv(t, gateway.NewMock())

	w := env.do(t, http.MethodPost, "/configure", "application/x-www-form-urlencoded",
		[]byte("name=Long&age=27"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if p := env.mgr.Snapshot(); p.Name != "Long" || p.Age != 27 {
		t.Fatalf("form update not applied: %+v", p)
	}
}

func TestConfigureRejectsUnderage(t *testing.T) {
	env := newTestEnv(t, gateway.NewMock())

	w := env.do(t, http.MethodPost, "/configure", "application/json", []byte(`{"age":"15"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var body errorBody
	decode(t, w, &body)
	if body.Error == "" || body.Details == "" {
		t.Errorf("expected error and details, got %+v", body)
	}
	if got := env.mgr.Snapshot().Age; got != 23 {
		t.Errorf("age changed to %d", got)
	}
	if env.repo.Saves() != 0 {
		t.Error("rejected update must not persist")
	}
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockReply("Chào em!"))

	w := env.do(t, http.MethodPost, "/chat", "application/json", []byte(`{"message":"Xin chào"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	decode(t, w, &resp)
	if resp.Message != "Chào em!" || resp.Name != "Anh Trí" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.ConversationHistory) != 2 || resp.ConversationHistory[0].Message != "Xin chào" {
		t.Errorf("unexpected history %+v", resp.ConversationHistory)
	}
	if resp.ContextMode != domain.ContextModeDefault {
		t.Errorf("unexpected mode %q", resp.ContextMode)
	}
}

func TestChatErrors(t *testing.T) {
	t.Run("empty message", func(t *testing.T) {
		env := newTestEnv(t, gateway.NewMock())
		w := env.do(t, http.MethodPost, "/chat", "application/json", []byte(`{"message":""}`))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("gateway failure", func(t *testing.T) {
		env := newTestEnv(t, gateway.NewMockError(errors.New("upstream unavailable")))
		w := env.do(t, http.MethodPost, "/chat", "application/json", []byte(`{"message":"hi"}`))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Expected status 500, got %d", w.Code)
		}
		var body errorBody
		decode(t, w, &body)
		if !strings.Contains(body.Details, "upstream unavailable") {
			t.Errorf("details should carry the cause, got %q", body.Details)
		}
		if len(env.mgr.Snapshot().ConversationHistory) != 0 {
			t.Error("history must stay empty after a failed exchange")
		}
	})
}

func TestChangeContext(t *testing.T) {
	env := newTestEnv(t, gateway.NewMock())

	w := env.do(t, http.MethodPost, "/change-context", "application/json", []byte(`{"mode":"astrology"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["mode"] != "astrology" || resp["message"] == "" {
		t.Errorf("unexpected response %v", resp)
	}

	w = env.do(t, http.MethodPost, "/change-context", "application/json", []byte(`{"mode":"numerology"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if env.mgr.Snapshot().ContextMode != domain.ContextModeAstrology {
		t.Error("invalid mode must not change state")
	}
}

func TestResetConversation(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockReply("ok"))

	env.do(t, http.MethodPost, "/chat", "application/json", []byte(`{"message":"một"}`))
	w := env.do(t, http.MethodPost, "/reset-conversation", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if n := len(env.mgr.Snapshot().ConversationHistory); n != 0 {
		t.Fatalf("expected empty history, got %d turns", n)
	}
}

func TestChatWithImage(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockReply("Ảnh đẹp!"))

	body, ct := imageForm(t, "cat.PNG", pngHeader, "xem nè")
	w := env.do(t, http.MethodPost, "/chat-with-image", ct, body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	decode(t, w, &resp)
	if !strings.HasPrefix(resp.ImageURL, "/uploads/") || !strings.HasSuffix(resp.ImageURL, ".png") {
		t.Fatalf("unexpected image url %q", resp.ImageURL)
	}
	if resp.ConversationHistory[0].ImageURL != resp.ImageURL {
		t.Error("user turn must reference the stored image")
	}
	if img := env.gw.LastImage(); img == nil || img.MIMEType != "image/png" {
		t.Errorf("gateway got unexpected image %+v", img)
	}

	served := env.do(t, http.MethodGet, resp.ImageURL, "", nil)
	if served.Code != http.StatusOK || !bytes.Equal(served.Body.Bytes(), pngHeader) {
		t.Errorf("stored image not served back (status %d)", served.Code)
	}
}

func TestChatWithImageRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"missing image", "", nil},
		{"bad extension", "notes.txt", pngHeader},
		{"content mismatch", "fake.jpg", []byte("plain text pretending to be a photo")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, gateway.NewMock())
			body, ct := imageForm(t, tt.filename, tt.data, "hi")

			w := env.do(t, http.MethodPost, "/chat-with-image", ct, body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			if env.gw.Calls() != 0 {
				t.Error("gateway must not be called")
			}
		})
	}
}

func TestChatWithImageGatewayFailureRemovesUpload(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockError(errors.New("boom")))

	body, ct := imageForm(t, "a.png", pngHeader, "")
	w := env.do(t, http.MethodPost, "/chat-with-image", ct, body)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}

	entries, err := os.ReadDir(env.uploads)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected orphaned upload to be removed, found %d files", len(entries))
	}
}

func TestIndexRendersHistory(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockReply("**Chào** em <script>x</script>"))
	env.do(t, http.MethodPost, "/chat", "application/json", []byte(`{"message":"Xin chào"}`))

	w := env.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	page := w.Body.String()
	for _, want := range []string{"Anh Trí", "<strong>Chào</strong>", `value="astrology"`, "Xin chào"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "<script>x</script>") {
		t.Error("raw HTML from the model must not be rendered")
	}
}

func TestGetPersona(t *testing.T) {
	env := newTestEnv(t, gateway.NewMock())

	w := env.do(t, http.MethodGet, "/api/persona", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var p domain.Persona
	decode(t, w, &p)
	if p.Name != "Anh Trí" || p.ContextMode != domain.ContextModeDefault {
		t.Errorf("unexpected persona %+v", p)
	}
}

func TestChatSocket(t *testing.T) {
	env := newTestEnv(t, gateway.NewMockReply("Chào em!"))
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	exchange := func(frame string) map[string]interface{} {
		t.Helper()
		if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var out map[string]interface{}
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return out
	}

	if got := exchange(`{"type":"ping"}`); got["type"] != "pong" {
		t.Errorf("expected pong, got %v", got)
	}
	got := exchange(`{"type":"chat","message":"Xin chào"}`)
	if got["type"] != "reply" || got["message"] != "Chào em!" {
		t.Errorf("unexpected reply %v", got)
	}
	if got := exchange(`{"type":"chat","message":""}`); got["type"] != "error" {
		t.Errorf("expected error frame, got %v", got)
	}
	if n := len(env.mgr.Snapshot().ConversationHistory); n != 2 {
		t.Errorf("expected 2 turns after socket chat, got %d", n)
	}
}
