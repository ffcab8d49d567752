package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store for tests and single-node dev runs.
// The mutex makes InsertRecord's conflict check atomic, like a unique index.
type MemStore struct {
	mu      sync.Mutex
	codes   map[string]Code
	records map[string]Record
	byPair  map[[2]string]string
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		codes:   make(map[string]Code),
		records: make(map[string]Record),
		byPair:  make(map[[2]string]string),
	}
}

func (m *MemStore) InsertCode(_ context.Context, c Code) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.codes[c.ID] = c
	return c, nil
}

func (m *MemStore) GetCode(_ context.Context, id string) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemStore) LatestCode(_ context.Context, token string, notBefore time.Time) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Code
	for _, c := range m.codes {
		if c.Token != token || !c.ExpiresAt.After(notBefore) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			c := c
			best = &c
		}
	}
	return best, nil
}

func (m *MemStore) ExpireCode(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok {
		return ErrNotFound
	}
	c.ExpiresAt = at
	m.codes[id] = c
	return nil
}

func (m *MemStore) FindRecord(_ context.Context, studentID, codeID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPair[[2]string{studentID, codeID}]
	if !ok {
		return nil, nil
	}
	rec := m.records[id]
	return &rec, nil
}

func (m *MemStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{rec.StudentID, rec.CodeID}
	if _, exists := m.byPair[key]; exists {
		return Record{}, ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.records[rec.ID] = rec
	m.byPair[key] = rec.ID
	return rec, nil
}

func (m *MemStore) GetRecord(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemStore) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	m.mu.Lock()
	res := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if f.StudentID != "" && rec.StudentID != f.StudentID {
			continue
		}
		if f.CourseID != "" && rec.CourseID != f.CourseID {
			continue
		}
		res = append(res, rec)
	}
	m.mu.Unlock()

	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	limit, offset := normalizePage(f.Limit, f.Offset)
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemStore) SetLedgerTx(_ context.Context, recordID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return ErrNotFound
	}
	rec.LedgerTxHash = txHash
	m.records[recordID] = rec
	return nil
}

func (m *MemStore) SetTimeOut(_ context.Context, recordID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.TimeOut != nil {
		return false, nil
	}
	rec.TimeOut = &at
	m.records[recordID] = rec
	return true, nil
}

// Count returns the number of stored records.
func (m *MemStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
