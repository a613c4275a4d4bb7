package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/internal/store"
)

func strPtr(s string) *string { return &s }

func newTestManager(t *testing.T, initial domain.Persona) (*Manager, *store.MemoryStore) {
	t.Helper()
	repo := store.NewMemory()
	mgr, err := NewManager(context.Background(), repo, initial, slog.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, repo
}

func turns(n int) []domain.Turn {
	out := make([]domain.Turn, n)
	for i := range out {
		out[i] = domain.Turn{Sender: domain.UserSender, Message: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestNewManagerPrefersPersistedState(t *testing.T) {
	t.Parallel()

	repo := store.NewMemory()
	saved := domain.DefaultPersona()
	saved.Name = "Anh Lưu"
	if err := repo.Save(context.Background(), &saved); err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(context.Background(), repo, domain.DefaultPersona(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if got := mgr.Snapshot().Name; got != "Anh Lưu" {
		t.Fatalf("expected persisted persona, got %q", got)
	}
}

func TestConfigureValidAgeResetsHistory(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.ConversationHistory = turns(6)
	mgr, repo := newTestManager(t, initial)

	got, err := mgr.Configure(context.Background(), domain.PersonaUpdate{Age: strPtr("42"), Name: strPtr("Anh Khoa")})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got.Age != 42 || got.Name != "Anh Khoa" {
		t.Fatalf("update not applied: %+v", got)
	}
	if len(mgr.Snapshot().ConversationHistory) != 0 {
		t.Fatal("history must be empty after configure")
	}

	saved, _ := repo.Load(context.Background())
	if saved == nil || saved.Age != 42 || len(saved.ConversationHistory) != 0 {
		t.Fatalf("store does not reflect configure: %+v", saved)
	}
}

func TestConfigureInvalidLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.ConversationHistory = turns(4)
	mgr, repo := newTestManager(t, initial)
	before := mgr.Snapshot()

	updates := []domain.PersonaUpdate{
		{Age: strPtr("15")},
		{Age: strPtr("abc")},
		{Name: strPtr("Anh Khoa"), Avatar: strPtr("not-a-url.jpg")},
		{Avatar: strPtr("https://example.com/a.bmp")},
	}
	for _, u := range updates {
		_, err := mgr.Configure(context.Background(), u)
		if !domain.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}

	if !reflect.DeepEqual(mgr.Snapshot(), before) {
		t.Fatal("persona changed after failed configure")
	}
	if repo.Saves() != 0 {
		t.Fatalf("failed configure must not persist, saw %d saves", repo.Saves())
	}
}

func TestChangeContextModeKeepsHistory(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.ConversationHistory = turns(3)
	mgr, repo := newTestManager(t, initial)

	mode, err := mgr.ChangeContextMode(context.Background(), "astrology")
	if err != nil {
		t.Fatalf("ChangeContextMode: %v", err)
	}
	snap := mgr.Snapshot()
	if mode != domain.ContextModeAstrology || snap.ContextMode != domain.ContextModeAstrology {
		t.Fatalf("mode not applied: %q / %q", mode, snap.ContextMode)
	}
	if !reflect.DeepEqual(snap.ConversationHistory, initial.ConversationHistory) {
		t.Fatal("history changed on mode switch")
	}
	if repo.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", repo.Saves())
	}

	if _, err := mgr.ChangeContextMode(context.Background(), "numerology"); !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if mgr.Snapshot().ContextMode != domain.ContextModeAstrology {
		t.Fatal("invalid mode must not change state")
	}
}

func TestAppendAndTrimFIFO(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.MaxContextLength = 100
	mgr, _ := newTestManager(t, initial)

	// Bypass the cap to reproduce an oversized legacy history of 250 turns.
	mgr.persona.ConversationHistory = turns(250)

	history, err := mgr.AppendAndTrim(context.Background(),
		domain.Turn{Sender: domain.UserSender, Message: "new-user"},
		domain.Turn{Sender: initial.Name, Message: "new-reply"},
	)
	if err != nil {
		t.Fatalf("AppendAndTrim: %v", err)
	}
	if len(history) != 200 {
		t.Fatalf("expected 200 turns, got %d", len(history))
	}
	if history[0].Message != "m52" {
		t.Fatalf("expected oldest 52 dropped, first is %q", history[0].Message)
	}
	if history[198].Message != "new-user" || history[199].Message != "new-reply" {
		t.Fatalf("new turns not at the end: %+v", history[198:])
	}
}

func TestAppendAndTrimNeverExceedsCap(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.MaxContextLength = 3
	mgr, _ := newTestManager(t, initial)

	for i := 0; i < 20; i++ {
		history, err := mgr.AppendAndTrim(context.Background(), domain.Turn{Sender: domain.UserSender, Message: fmt.Sprint(i)})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) > 6 {
			t.Fatalf("history length %d exceeds cap", len(history))
		}
		if history[len(history)-1].Message != fmt.Sprint(i) {
			t.Fatal("newest turn must be last")
		}
	}
	if got := mgr.Snapshot().ConversationHistory[0].Message; got != "14" {
		t.Fatalf("expected oldest kept turn 14, got %s", got)
	}
}

func TestAppendAndTrimTruncatesMessages(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, domain.DefaultPersona())
	history, err := mgr.AppendAndTrim(context.Background(), domain.Turn{Sender: domain.UserSender, Message: strings.Repeat("x", 1500)})
	if err != nil {
		t.Fatal(err)
	}
	if len(history[0].Message) != domain.MaxMessageLength {
		t.Fatalf("expected truncated message, got %d chars", len(history[0].Message))
	}
}

func TestSaveFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	mgr, repo := newTestManager(t, domain.DefaultPersona())
	repo.FailSaves(errors.New("disk full"))

	_, err := mgr.AppendAndTrim(context.Background(), domain.Turn{Sender: domain.UserSender, Message: "hi"})
	if !domain.IsIO(err) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if len(mgr.Snapshot().ConversationHistory) != 0 {
		t.Fatal("unpersisted turn became visible")
	}
	if err := mgr.ResetConversation(context.Background()); !domain.IsIO(err) {
		t.Fatalf("expected IOError from reset, got %v", err)
	}
}

func TestResetConversationPersists(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.ConversationHistory = turns(5)
	initial.ContextMode = domain.ContextModeTarot
	mgr, repo := newTestManager(t, initial)

	if err := mgr.ResetConversation(context.Background()); err != nil {
		t.Fatal(err)
	}
	saved, _ := repo.Load(context.Background())
	if saved == nil || len(saved.ConversationHistory) != 0 || saved.ContextMode != domain.ContextModeTarot {
		t.Fatalf("unexpected saved state %+v", saved)
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	t.Parallel()

	initial := domain.DefaultPersona()
	initial.MaxContextLength = 1000
	mgr, repo := newTestManager(t, initial)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := mgr.AppendAndTrim(context.Background(),
				domain.Turn{Sender: domain.UserSender, Message: fmt.Sprintf("u%d", i)},
				domain.Turn{Sender: initial.Name, Message: fmt.Sprintf("r%d", i)},
			)
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	history := mgr.Snapshot().ConversationHistory
	if len(history) != 100 {
		t.Fatalf("expected 100 turns, got %d", len(history))
	}
	for i := 0; i < len(history); i += 2 {
		u, r := history[i].Message, history[i+1].Message
		if "r"+u[1:] != r {
			t.Fatalf("pair split at %d: %q then %q", i, u, r)
		}
	}
	saved, _ := repo.Load(context.Background())
	if !reflect.DeepEqual(saved.ConversationHistory, history) {
		t.Fatal("store does not match last mutation")
	}
}
