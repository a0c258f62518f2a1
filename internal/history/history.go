package history

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

// Entry is one question and its answer.
type Entry struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Source   string    `json:"source"`
	Failed   bool      `json:"failed"`
	AskedAt  time.Time `json:"asked_at"`
}

func EntryFromAnswer(a models.Answer) Entry {
	return Entry{
		Question: a.Query,
		Answer:   a.Content,
		Source:   a.SourceInfo(),
		Failed:   a.Failed(),
		AskedAt:  time.Now(),
	}
}

// Store is the append-only conversation of a single session.
type Store struct {
	mu      sync.Mutex
	entries []Entry
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of the conversation, latest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var md = goldmark.New()

// RenderHTML converts a markdown answer to HTML. Raw HTML in the input is
// not passed through.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// Registry maps session ids to their stores.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Store)}
}

// Session returns the store for id, starting a new session with a fresh id
// when id is empty or unknown.
func (r *Registry) Session(id string) (string, *Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && id != "" {
		return id, s, nil
	}
	newID, err := helper.GenerateUUID()
	if err != nil {
		return "", nil, err
	}
	s := NewStore()
	r.sessions[newID] = s
	return newID, s, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
