package conversations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func TestCurrentIDIsCreatedOnceAndPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "conversations.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := store.CurrentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == "" {
		t.Fatalf("expected a generated id")
	}
	again, _ := store.CurrentID()
	if again != first {
		t.Fatalf("expected stable id, got %q then %q", first, again)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := reopened.CurrentID(); got != first {
		t.Fatalf("expected persisted id %q, got %q", first, got)
	}
}

func TestHistoryRoundTripsPerConversation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := []llms.Message{llms.UserMessage("hi"), llms.AssistantMessage("hello")}
	if err := store.SaveHistory("a", history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := reopened.History("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Content != "hello" || got[1].Role != llms.MessageRoleAssistant {
		t.Fatalf("unexpected history %+v", got)
	}
	if other, _ := reopened.History("b"); other != nil {
		t.Fatalf("expected no history for an unknown conversation, got %+v", other)
	}
}

func TestNewConversationKeepsOldHistory(t *testing.T) {
	store := NewMemoryStore()
	first, _ := store.CurrentID()
	if err := store.SaveHistory(first, []llms.Message{llms.UserMessage("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := store.NewConversation()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second == first {
		t.Fatalf("expected a new id")
	}
	if current, _ := store.CurrentID(); current != second {
		t.Fatalf("expected current id %q, got %q", second, current)
	}
	if old, _ := store.History(first); len(old) != 1 {
		t.Fatalf("expected old history to be kept, got %+v", old)
	}
}

func TestSetCurrentIDRejectsEmpty(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SetCurrentID(""); err == nil {
		t.Fatalf("expected an error")
	}
	if err := store.SetCurrentID("provider-id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := store.CurrentID(); got != "provider-id" {
		t.Fatalf("expected provider-id, got %q", got)
	}
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}
