// Package history provides the append-only conversation log with a two-phase
// commit: the current cycle's messages stay uncommitted until the cycle
// completes, so an interruption can discard them cleanly.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/parley/pkg/models"
)

// Item wraps a single recorded message.
type Item struct {
	Message models.Message
}

// Store holds the committed log plus the current cycle's draft.
type Store struct {
	mu          sync.Mutex
	uncommitted []Item
	committed   []Item
}

// NewStore creates an empty history store.
func NewStore() *Store {
	return &Store{}
}

// Append records a message in the uncommitted queue.
func (s *Store) Append(msg models.Message) {
	if msg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uncommitted = append(s.uncommitted, Item{Message: msg})
}

// Commit moves the uncommitted queue into the durable log.
func (s *Store) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, s.uncommitted...)
	s.uncommitted = nil
}

// ResetUncommitted discards the current draft and reports whether anything
// was discarded. Called on interruption so the next cycle starts clean.
func (s *Store) ResetUncommitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	discarded := len(s.uncommitted) > 0
	s.uncommitted = nil
	return discarded
}

// Clear drops both queues.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uncommitted = nil
	s.committed = nil
}

// Len returns committed and uncommitted counts.
func (s *Store) Len() (committed, uncommitted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed), len(s.uncommitted)
}

// Messages returns every recorded message, committed first.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, 0, len(s.committed)+len(s.uncommitted))
	for _, item := range s.committed {
		out = append(out, item.Message)
	}
	for _, item := range s.uncommitted {
		out = append(out, item.Message)
	}
	return out
}

// HistoryFor returns the conversation as seen by the given author: every
// message except the author's own directly-entered text, which was their
// input rather than received conversation.
func (s *Store) HistoryFor(author models.Author) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, queue := range [][]Item{s.committed, s.uncommitted} {
		for _, item := range queue {
			msg := item.Message
			if msg.Author() == author && msg.DirectlyEntered() {
				continue
			}
			out = append(out, msg)
		}
	}
	return out
}

// snapshot is the on-disk format: {"messages":[{"message":{...}}, ...]}.
type snapshot struct {
	Messages []snapshotItem `json:"messages"`
}

type snapshotItem struct {
	Message json.RawMessage `json:"message"`
}

// Save writes the full history (committed and uncommitted) as JSON.
func (s *Store) Save(path string) error {
	messages := s.Messages()

	snap := snapshot{Messages: make([]snapshotItem, 0, len(messages))}
	for _, msg := range messages {
		raw, err := models.MarshalMessage(msg)
		if err != nil {
			return fmt.Errorf("serialise history: %w", err)
		}
		snap.Messages = append(snap.Messages, snapshotItem{Message: raw})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Load replaces the store contents with a saved snapshot. Every loaded
// message lands in the committed log. Unknown message types fail the load.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}

	items := make([]Item, 0, len(snap.Messages))
	for i, entry := range snap.Messages {
		msg, err := models.UnmarshalMessage(entry.Message)
		if err != nil {
			return fmt.Errorf("history entry %d: %w", i, err)
		}
		items = append(items, Item{Message: msg})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = items
	s.uncommitted = nil
	return nil
}

// DefaultSavePath builds a timestamped history filename in the given
// directory, used for crash saves and bare save commands.
func DefaultSavePath(dir string) string {
	name := "parley-history-" + time.Now().Format("20060102-150405") + ".json"
	return filepath.Join(dir, name)
}
