// Package seen holds the set of item identifiers that were already notified.
//
// A Set has a single owner (the poll loop) and is not safe for concurrent use.
// Persistence is explicit: Load once at startup, Save after each cycle.
package seen

import (
	"context"

	"modwatch/internal/feed"
	"modwatch/internal/storage"
	logx "modwatch/pkg/logx"
)

// Set is the seen-set. Identifiers are never removed once added.
type Set struct {
	ids     map[string]struct{}
	pending []storage.Record

	store  storage.Store
	fields feed.Fields
	log    logx.Logger
}

// New returns an empty set. store may be nil (memory only).
func New(store storage.Store, fields feed.Fields, log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Set{
		ids:    map[string]struct{}{},
		store:  store,
		fields: fields.WithDefaults(),
		log:    log,
	}
}

func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks item as seen and queues its record for the next Save.
func (s *Set) Add(item feed.Item) {
	if item.ID == "" {
		return
	}
	if _, ok := s.ids[item.ID]; ok {
		return
	}
	s.ids[item.ID] = struct{}{}
	s.pending = append(s.pending, storage.Record{ID: item.ID, Data: item.Raw})
}

func (s *Set) Len() int { return len(s.ids) }

// Pending reports how many additions have not been saved yet.
func (s *Set) Pending() int { return len(s.pending) }

// Load fills the set from the durable store.
//
// It fails open: any load error is logged and the set keeps whatever it
// already holds (empty at startup). Records without a decodable id are skipped.
func (s *Set) Load(ctx context.Context) int {
	if s.store == nil {
		return 0
	}
	recs, err := s.store.Load(ctx)
	if err != nil {
		s.log.Error("seen cache unreadable; starting empty", logx.Err(err))
		return 0
	}
	n := 0
	for _, r := range recs {
		id := r.ID
		if id == "" {
			it, err := s.fields.Decode(r.Data)
			if err != nil {
				continue
			}
			id = it.ID
		}
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; !ok {
			s.ids[id] = struct{}{}
			n++
		}
	}
	s.log.Info("seen cache loaded", logx.Int("records", len(recs)), logx.Int("ids", n))
	return n
}

// Save flushes pending additions. On failure the pending records are kept
// and retried on the next Save; the in-memory set stays authoritative.
func (s *Set) Save(ctx context.Context) error {
	if s.store == nil || len(s.pending) == 0 {
		s.pending = nil
		return nil
	}
	if err := s.store.Append(ctx, s.pending); err != nil {
		return err
	}
	s.pending = nil
	return nil
}
