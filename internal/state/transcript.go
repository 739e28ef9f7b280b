package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/fairweather/internal/types"
)

// dirName maps a conversation id to a directory name and back. Query
// escaping covers ':' and path separators; dots are escaped so no name is
// "." or "..".
func dirName(id types.ConversationID) string {
	return strings.ReplaceAll(url.QueryEscape(string(id)), ".", "%2E")
}

func conversationOf(dir string) (types.ConversationID, error) {
	s, err := url.QueryUnescape(dir)
	return types.ConversationID(s), err
}

// TranscriptStore is an append-only JSONL log of handled turns, one file per
// conversation under conversations/<id>/turns.jsonl.
type TranscriptStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.ConversationID]*sync.Mutex
}

func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{
		root:  root,
		locks: make(map[types.ConversationID]*sync.Mutex),
	}
}

func (s *TranscriptStore) lock(id types.ConversationID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

func (s *TranscriptStore) turnsPath(id types.ConversationID) string {
	return filepath.Join(s.root, "conversations", dirName(id), "turns.jsonl")
}

// count reads the turns file and counts lines. Caller must hold the lock.
func (s *TranscriptStore) count(id types.ConversationID) (int64, error) {
	f, err := os.Open(s.turnsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open turns file: %w", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan turns file: %w", err)
	}
	return n, nil
}

// Append writes turn with the next sequence number for its conversation.
func (s *TranscriptStore) Append(_ context.Context, turn *types.Turn) error {
	l := s.lock(turn.ConversationID)
	l.Lock()
	defer l.Unlock()

	path := s.turnsPath(turn.ConversationID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}

	existing, err := s.count(turn.ConversationID)
	if err != nil {
		return err
	}
	turn.Seq = existing + 1
	if turn.ID == "" {
		turn.ID = types.NewTurnID()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open turns file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write turn: %w", err)
	}
	return nil
}

// Tail returns the last limit turns, oldest first. A non-positive limit
// returns all of them.
func (s *TranscriptStore) Tail(_ context.Context, id types.ConversationID, limit int) ([]*types.Turn, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(s.turnsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open turns file: %w", err)
	}
	defer f.Close()

	var turns []*types.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var turn types.Turn
		if err := json.Unmarshal(scanner.Bytes(), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, &turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan turns file: %w", err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *TranscriptStore) Count(_ context.Context, id types.ConversationID) (int64, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	return s.count(id)
}

// Conversations lists the conversations that have a transcript, in
// directory order.
func (s *TranscriptStore) Conversations() ([]types.ConversationID, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "conversations"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read conversations dir: %w", err)
	}
	var out []types.ConversationID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := conversationOf(e.Name())
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
