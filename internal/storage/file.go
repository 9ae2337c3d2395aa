package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pushgate/internal/quiethours"
	"pushgate/pkg/logx"
)

// fileStore keeps every key's record in one JSON document:
//
//	{"quiet-hours": {"schedule": {...}, "updated_at": "..."}}
//
// Saves rewrite the document through a temp file and rename, so readers
// (including other processes) never see a partial write. Load re-reads the
// file so edits made outside the process are picked up.
type fileStore struct {
	log  logx.Logger
	path string
	key  string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	st := &fileStore{log: log, path: path, key: cfg.key()}
	// Fail early on an unreadable document rather than on first push.
	if _, err := st.readAll(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *fileStore) Driver() string { return "file" }

func (s *fileStore) readAll() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return m, nil
}

func (s *fileStore) Load(ctx context.Context) (quiethours.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return quiethours.Schedule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return quiethours.Schedule{}, ErrClosed
	}
	m, err := s.readAll()
	if err != nil {
		return quiethours.Schedule{}, err
	}
	raw, ok := m[s.key]
	if !ok {
		return quiethours.Schedule{}, ErrNotFound
	}
	return decodeRecord(raw)
}

func (s *fileStore) Save(ctx context.Context, sched quiethours.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := encodeRecord(sched)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.readAll()
	if err != nil {
		// A corrupt document is replaced rather than blocking every save.
		s.log.Warn("schedule file unreadable; rewriting", logx.Err(err))
		m = map[string]json.RawMessage{}
	}
	m[s.key] = rec
	return s.writeLocked(m)
}

func (s *fileStore) writeLocked(m map[string]json.RawMessage) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
