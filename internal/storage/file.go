package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "modwatch/pkg/logx"
)

// fileStore keeps the seen cache as one JSON array of item records.
//
// The whole array is rewritten (tmp + rename) on every Append, so a crash
// mid-write leaves the previous snapshot intact.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	records []json.RawMessage
	closed  bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if cfg.ResetOnStart {
		if err := os.Remove(path); err == nil {
			log.Info("deleted seen cache at startup", logx.String("path", path))
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reset seen cache: %w", err)
		}
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.records = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		s.records = nil
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.records = raws

	out := make([]Record, 0, len(raws))
	for _, r := range raws {
		out = append(out, Record{Data: r})
	}
	return out, nil
}

func (s *fileStore) Append(ctx context.Context, recs []Record) error {
	_ = ctx
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := append(append([]json.RawMessage(nil), s.records...), dataOf(recs)...)
	if err := writeJSONAtomic(s.path, next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func dataOf(recs []Record) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		d := r.Data
		if len(bytes.TrimSpace(d)) == 0 {
			// Keep at least the id so the next start can rebuild the set.
			d, _ = json.Marshal(map[string]string{"id": r.ID})
		}
		out = append(out, d)
	}
	return out
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
