package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Retention caps for captured items.  Oldest entries beyond the cap are
// dropped, FIFO.
const (
	MaxMemories        = 50
	MaxChatExports     = 10
	MaxContextHandoffs = 10
)

// Memory types.
const (
	MemoryUser       = "user"
	MemoryAssistant  = "assistant"
	MemoryChatExport = "chat_export"
)

// ErrEmptyText is returned when saving a memory with no content.
var ErrEmptyText = errors.New("empty memory text")

// Memory is a single captured snippet.
type Memory struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	MessageCount int       `json:"messageCount,omitempty"`
}

// ContextHandoff is a compressed conversation snapshot.
type ContextHandoff struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	MessageCount int       `json:"messageCount"`
	Source       string    `json:"source"`
}

// SaveMemory prepends a new memory, enforcing the retention caps: at most
// MaxChatExports entries of the chat_export type, at most MaxMemories
// overall.
func (m *Manager) SaveMemory(text, typ string, messageCount int) (Memory, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Memory{}, ErrEmptyText
	}
	if typ == "" {
		typ = MemoryUser
	}
	mm, err := m.Memories()
	if err != nil {
		return Memory{}, err
	}
	mem := Memory{
		ID:           uuid.NewString(),
		Text:         text,
		Timestamp:    m.now(),
		Type:         typ,
		MessageCount: messageCount,
	}
	mm = append([]Memory{mem}, mm...)
	if typ == MemoryChatExport {
		mm = capByType(mm, MemoryChatExport, MaxChatExports)
	}
	if len(mm) > MaxMemories {
		mm = mm[:MaxMemories]
	}
	if err := storeJSON(m.memoriesPath(), mm); err != nil {
		return Memory{}, err
	}
	return mem, nil
}

// Memories returns all captured memories, newest first.  An empty store is
// not an error.
func (m *Manager) Memories() ([]Memory, error) {
	var mm []Memory
	if err := loadJSON(m.memoriesPath(), &mm); err != nil && !errors.Is(err, ErrNotCached) {
		return nil, err
	}
	return mm, nil
}

// DeleteMemory removes the memory with the given id.  Unknown ids are a
// no-op.
func (m *Manager) DeleteMemory(id string) error {
	mm, err := m.Memories()
	if err != nil {
		return err
	}
	kept := mm[:0]
	for _, mem := range mm {
		if mem.ID != id {
			kept = append(kept, mem)
		}
	}
	return storeJSON(m.memoriesPath(), kept)
}

// SaveHandoff prepends a new context handoff, keeping at most
// MaxContextHandoffs.
func (m *Manager) SaveHandoff(title, content string, messageCount int) (ContextHandoff, error) {
	hh, err := m.Handoffs()
	if err != nil {
		return ContextHandoff{}, err
	}
	h := ContextHandoff{
		ID:           uuid.NewString(),
		Timestamp:    m.now(),
		Title:        title,
		Content:      content,
		MessageCount: messageCount,
		Source:       "cli",
	}
	hh = append([]ContextHandoff{h}, hh...)
	if len(hh) > MaxContextHandoffs {
		hh = hh[:MaxContextHandoffs]
	}
	if err := storeJSON(m.contextsPath(), hh); err != nil {
		return ContextHandoff{}, err
	}
	return h, nil
}

// Handoffs returns all stored context handoffs, newest first.
func (m *Manager) Handoffs() ([]ContextHandoff, error) {
	var hh []ContextHandoff
	if err := loadJSON(m.contextsPath(), &hh); err != nil && !errors.Is(err, ErrNotCached) {
		return nil, err
	}
	return hh, nil
}

// DeleteHandoff removes the handoff with the given id.
func (m *Manager) DeleteHandoff(id string) error {
	hh, err := m.Handoffs()
	if err != nil {
		return err
	}
	kept := hh[:0]
	for _, h := range hh {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	return storeJSON(m.contextsPath(), kept)
}

// capByType drops the oldest entries of the given type beyond max, leaving
// other types untouched.
func capByType(mm []Memory, typ string, max int) []Memory {
	n := 0
	kept := mm[:0]
	for _, mem := range mm {
		if mem.Type == typ {
			n++
			if n > max {
				continue
			}
		}
		kept = append(kept, mem)
	}
	return kept
}

func (m *Manager) memoriesPath() string {
	return filepath.Join(m.dir, memoriesFile)
}

func (m *Manager) contextsPath() string {
	return filepath.Join(m.dir, contextsFile)
}
