package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/fairweather/internal/types"
)

var ErrBriefingNotFound = errors.New("briefing not found")

// Briefing is a named utterance injected into a conversation on a cron
// schedule or through the webhook, e.g. a morning weather report.
type Briefing struct {
	Name           string               `json:"name"`
	ConversationID types.ConversationID `json:"conversation_id"`
	Location       string               `json:"location,omitempty"`
	Prompt         string               `json:"prompt,omitempty"`
	Schedule       string               `json:"schedule,omitempty"`
	Enabled        bool                 `json:"enabled"`
}

// Utterance is the text fed to the dispatcher when the briefing fires.
func (b *Briefing) Utterance() string {
	if p := strings.TrimSpace(b.Prompt); p != "" {
		return p
	}
	if b.Location != "" {
		return fmt.Sprintf("What's the weather like in %s today?", b.Location)
	}
	return "What's the weather like today?"
}

// BriefingStore keeps briefings in a single JSON file.
type BriefingStore struct {
	path string
	mu   sync.RWMutex
}

func NewBriefingStore(path string) *BriefingStore {
	return &BriefingStore{path: path}
}

func (s *BriefingStore) Path() string {
	return s.path
}

// List returns all briefings, or an empty slice when the file doesn't exist.
func (s *BriefingStore) List() ([]*Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs, err := s.load()
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return []*Briefing{}, nil
	}
	return bs, nil
}

func (s *BriefingStore) Get(name string) (*Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, b := range bs {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBriefingNotFound, name)
}

func (s *BriefingStore) Add(b *Briefing) error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("briefing name is required")
	}
	if b.ConversationID == "" {
		return errors.New("briefing conversation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range bs {
		if existing.Name == b.Name {
			return fmt.Errorf("briefing already exists: %s", b.Name)
		}
	}
	return s.save(append(bs, b))
}

func (s *BriefingStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs, err := s.load()
	if err != nil {
		return err
	}
	for i, b := range bs {
		if b.Name == name {
			return s.save(append(bs[:i], bs[i+1:]...))
		}
	}
	return fmt.Errorf("%w: %s", ErrBriefingNotFound, name)
}

func (s *BriefingStore) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs, err := s.load()
	if err != nil {
		return err
	}
	for _, b := range bs {
		if b.Name == name {
			b.Enabled = enabled
			return s.save(bs)
		}
	}
	return fmt.Errorf("%w: %s", ErrBriefingNotFound, name)
}

func (s *BriefingStore) load() ([]*Briefing, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read briefings file: %w", err)
	}

	var bs []*Briefing
	if err := json.Unmarshal(data, &bs); err != nil {
		return nil, fmt.Errorf("unmarshal briefings: %w", err)
	}
	return bs, nil
}

// save writes via temp file and rename.
func (s *BriefingStore) save(bs []*Briefing) error {
	data, err := json.MarshalIndent(bs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal briefings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create briefings dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp briefings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp briefings file: %w", err)
	}
	return nil
}
