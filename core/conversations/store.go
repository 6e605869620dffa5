package conversations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/llms"
)

const currentKey = "current"

func historyKey(id string) string { return "chat:" + id }

// Store keeps the current conversation id and per-conversation history in a
// single JSON file of string keys. An empty path keeps everything in memory.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
}

// Open loads the store at path, creating it on first write.
func Open(path string) (*Store, error) {
	store := &Store{path: path, values: map[string]json.RawMessage{}}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read conversation store: %w", err)
	}
	if len(data) == 0 {
		return store, nil
	}
	if err := json.Unmarshal(data, &store.values); err != nil {
		return nil, fmt.Errorf("failed to parse conversation store %s: %w", path, err)
	}
	return store, nil
}

func NewMemoryStore() *Store {
	store, _ := Open("")
	return store
}

// CurrentID returns the id of the conversation in progress, creating one if
// none exists.
func (s *Store) CurrentID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	if raw, ok := s.values[currentKey]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			logger.Warn("Ignoring malformed conversation id", "error", err)
		}
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.setLocked(currentKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// SetCurrentID switches to conversation id, e.g. one assigned by the model
// provider.
func (s *Store) SetCurrentID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(currentKey, id)
}

// NewConversation forgets the current id. History of earlier conversations
// stays in the store.
func (s *Store) NewConversation() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if err := s.setLocked(currentKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) History(id string) ([]llms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[historyKey(id)]
	if !ok {
		return nil, nil
	}
	var history []llms.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history of %s: %w", id, err)
	}
	return history, nil
}

func (s *Store) SaveHistory(id string, history []llms.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(historyKey(id), history)
}

func (s *Store) setLocked(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.values[key] = raw
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create conversation store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write conversation store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace conversation store: %w", err)
	}
	return nil
}
