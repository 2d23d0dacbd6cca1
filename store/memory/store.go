// Package memory provides an in-memory store driver, used by tests and
// for embedding without external infrastructure.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/RuSwift/microledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store in process memory. Records are kept in
// insertion order; a transaction stages a deep copy of the dataset and
// swaps it in on commit, so a failed transaction leaves nothing behind.
type Store struct {
	mu      sync.RWMutex
	records []*store.Record
	nextSeq int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{nextSeq: 1}
}

func (s *Store) Find(_ context.Context, q store.Query) (int, []*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return find(s.records, q)
}

func (s *Store) FindOne(_ context.Context, q store.Query) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findOne(s.records, q)
}

// InTx runs fn against a staged copy of the dataset. The copy replaces
// the live dataset only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]*store.Record, len(s.records))
	for i, rec := range s.records {
		staged[i] = cloneRecord(rec)
	}

	tx := &memTx{records: staged, nextSeq: s.nextSeq}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.records = tx.records
	s.nextSeq = tx.nextSeq
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// memTx operates on the staged dataset under the store mutex.
type memTx struct {
	records []*store.Record
	nextSeq int64
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) Find(_ context.Context, q store.Query) (int, []*store.Record, error) {
	return find(t.records, q)
}

func (t *memTx) FindOne(_ context.Context, q store.Query) (*store.Record, error) {
	return findOne(t.records, q)
}

func (t *memTx) Insert(_ context.Context, rec *store.Record) error {
	c := cloneRecord(rec)
	if c.UID == "" {
		c.UID = store.NewUID()
	}
	c.Seq = t.nextSeq
	t.nextSeq++
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	t.records = append(t.records, c)

	rec.UID = c.UID
	rec.Seq = c.Seq
	return nil
}

func (t *memTx) Update(_ context.Context, rec *store.Record) error {
	for i, existing := range t.records {
		if existing.UID == rec.UID {
			c := cloneRecord(rec)
			c.Seq = existing.Seq
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = time.Now().UTC()
			t.records[i] = c
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) Upsert(ctx context.Context, q store.Query, rec *store.Record) error {
	for i, existing := range t.records {
		if matches(existing, q) {
			c := cloneRecord(rec)
			c.UID = existing.UID
			c.Seq = existing.Seq
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = time.Now().UTC()
			t.records[i] = c
			return nil
		}
	}
	return t.Insert(ctx, rec)
}

// Query evaluation

func find(records []*store.Record, q store.Query) (int, []*store.Record, error) {
	for _, cond := range q.Payload {
		if err := cond.Validate(); err != nil {
			return 0, nil, err
		}
	}

	matched := make([]*store.Record, 0)
	for _, rec := range records {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	if q.Sort == store.SortDesc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	page := make([]*store.Record, 0, end-start)
	for _, rec := range matched[start:end] {
		page = append(page, cloneRecord(rec))
	}
	return total, page, nil
}

func findOne(records []*store.Record, q store.Query) (*store.Record, error) {
	_, page, err := find(records, q)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, store.ErrNotFound
	}
	return page[0], nil
}

func matches(rec *store.Record, q store.Query) bool {
	if q.StorageID != "" && rec.StorageID != q.StorageID {
		return false
	}
	if len(q.StorageIDs) > 0 && !contains(q.StorageIDs, rec.StorageID) {
		return false
	}
	if q.LedgerID != "" && rec.LedgerID != q.LedgerID {
		return false
	}
	if q.Tag != "" && !contains(rec.Tags, q.Tag) {
		return false
	}
	for _, cond := range q.Payload {
		v, ok := lookup(rec.Payload, cond.Path)
		if !ok || !contains(cond.Values, v) {
			return false
		}
	}
	return true
}

// lookup walks a dot-separated path through nested payload maps and
// returns the value as a string.
func lookup(payload map[string]any, path string) (string, bool) {
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = m[part]
		if !ok {
			return "", false
		}
	}
	s, ok := current.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneRecord(rec *store.Record) *store.Record {
	c := *rec
	c.Tags = append([]string(nil), rec.Tags...)
	c.StorageIDs = append([]string(nil), rec.StorageIDs...)
	c.Payload = cloneMap(rec.Payload)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
