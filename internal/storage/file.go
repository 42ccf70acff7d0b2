package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "cevshenbot/pkg/logx"
)

const fileRecentKeep = 200

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.polls.jsonl (append-only JSON Lines)
//   - <prefix>.state.json  (small snapshot, rewritten atomically)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	pollFile  *os.File
	statePath string
	state     fileState

	// newest last
	recent []PollRecord
}

type fileState struct {
	TargetChatID int64 `json:"target_chat_id,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	pollPath := prefix + ".polls.jsonl"
	statePath := prefix + ".state.json"

	s := &fileStore{log: log, statePath: statePath}
	if err := loadState(statePath, &s.state); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("state snapshot unreadable; starting empty", logx.String("path", statePath), logx.Err(err))
	}
	if err := s.replayPolls(pollPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("poll log replay failed", logx.String("path", pollPath), logx.Err(err))
	}

	pf, err := os.OpenFile(pollPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.pollFile = pf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollFile == nil {
		return nil
	}
	err := s.pollFile.Close()
	s.pollFile = nil
	return err
}

func (s *fileStore) TargetChat(ctx context.Context) (int64, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.TargetChatID == 0 {
		return 0, false, nil
	}
	return s.state.TargetChatID, true, nil
}

func (s *fileStore) SetTargetChat(ctx context.Context, chatID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollFile == nil {
		return errors.New("file store closed")
	}
	next := s.state
	next.TargetChatID = chatID
	if err := writeState(s.statePath, next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *fileStore) AppendPoll(ctx context.Context, r PollRecord) error {
	_ = ctx
	r = normalize(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollFile == nil {
		return errors.New("poll log closed")
	}
	if err := json.NewEncoder(s.pollFile).Encode(r); err != nil {
		return err
	}
	s.remember(r)
	return nil
}

func (s *fileStore) RecentPolls(ctx context.Context, limit int) ([]PollRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]PollRecord, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) remember(r PollRecord) {
	s.recent = append(s.recent, r)
	if over := len(s.recent) - fileRecentKeep; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

func (s *fileStore) replayPolls(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r PollRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		s.remember(r)
	}
	return sc.Err()
}

func loadState(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func writeState(path string, st fileState) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
