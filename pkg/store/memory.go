// Package store provides LevelStore implementations for the hierarchy
// engine: an in-memory store set intended for tests, examples, and
// single-process deployments. See the sqlite subpackage for the durable
// variant.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	hier "github.com/phamhung075/4genthub-sub021"
)

type recordKey struct {
	owner string
	level hier.Level
	id    string
}

// memoryState is the mutex-guarded record map shared by the four per-level
// views of one store set.
type memoryState struct {
	mu      sync.RWMutex
	records map[recordKey]*hier.Context
	clock   func() time.Time
}

// Option configures an in-memory store set.
type Option func(*memoryState)

// WithClock overrides the timestamp source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(state *memoryState) {
		if clock != nil {
			state.clock = clock
		}
	}
}

// NewMemoryStores builds a complete in-memory StoreSet backed by shared
// state, so referential lookups across levels observe one consistent map.
func NewMemoryStores(opts ...Option) hier.StoreSet {
	state := &memoryState{
		records: map[recordKey]*hier.Context{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(state)
		}
	}
	return hier.StoreSet{
		Global:  &memoryLevelStore{state: state, level: hier.LevelGlobal},
		Project: &memoryLevelStore{state: state, level: hier.LevelProject},
		Branch:  &memoryLevelStore{state: state, level: hier.LevelBranch},
		Task:    &memoryLevelStore{state: state, level: hier.LevelTask},
	}
}

type memoryLevelStore struct {
	state *memoryState
	level hier.Level
}

func (s *memoryLevelStore) Level() hier.Level {
	return s.level
}

func (s *memoryLevelStore) Get(_ context.Context, owner, id string) (*hier.Context, error) {
	s.state.mu.RLock()
	record, ok := s.state.records[recordKey{owner: owner, level: s.level, id: id}]
	s.state.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	return record.Clone(), nil
}

func (s *memoryLevelStore) Create(_ context.Context, record *hier.Context) (*hier.Context, error) {
	if record == nil || record.ID == "" || record.OwnerUserID == "" {
		return nil, fmt.Errorf("hier: store create requires id and owner")
	}
	key := recordKey{owner: record.OwnerUserID, level: s.level, id: record.ID}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.records[key]; exists {
		return nil, fmt.Errorf("%w: %s %q (owner %q)", hier.ErrAlreadyExists, s.level, record.ID, record.OwnerUserID)
	}
	if s.level == hier.LevelGlobal {
		for existing := range s.state.records {
			if existing.owner == record.OwnerUserID && existing.level == hier.LevelGlobal {
				return nil, fmt.Errorf("%w: owner %q already has a global context %q",
					hier.ErrAlreadyExists, record.OwnerUserID, existing.id)
			}
		}
	}

	now := s.state.clock()
	stored := record.Clone()
	stored.Level = s.level
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Data == nil {
		stored.Data = hier.Data{}
	}
	s.state.records[key] = stored
	return stored.Clone(), nil
}

func (s *memoryLevelStore) Update(_ context.Context, owner, id string, patch hier.Data, expectedVersion int64) (*hier.Context, error) {
	key := recordKey{owner: owner, level: s.level, id: id}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	record, ok := s.state.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	if expectedVersion > 0 && record.Version != expectedVersion {
		return nil, fmt.Errorf("%w: %s %q expected version %d, stored %d",
			hier.ErrConcurrentModification, s.level, id, expectedVersion, record.Version)
	}

	record.Data = hier.ApplyPatch(record.Data, patch)
	record.Version++
	record.UpdatedAt = s.state.clock()
	return record.Clone(), nil
}

func (s *memoryLevelStore) Delete(_ context.Context, owner, id string) error {
	key := recordKey{owner: owner, level: s.level, id: id}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, ok := s.state.records[key]; !ok {
		return fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	delete(s.state.records, key)
	return nil
}

func (s *memoryLevelStore) List(_ context.Context, owner string, filter hier.ListFilter) ([]*hier.Context, error) {
	wanted := map[string]struct{}{}
	for _, id := range filter.IDs {
		wanted[id] = struct{}{}
	}

	s.state.mu.RLock()
	matches := make([]*hier.Context, 0)
	for key, record := range s.state.records {
		if key.owner != owner || key.level != s.level {
			continue
		}
		if filter.ParentID != "" && record.ParentID != filter.ParentID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[key.id]; !ok {
				continue
			}
		}
		matches = append(matches, record.Clone())
	}
	s.state.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches, nil
}

func (s *memoryLevelStore) Exists(_ context.Context, owner, id string) (bool, error) {
	s.state.mu.RLock()
	_, ok := s.state.records[recordKey{owner: owner, level: s.level, id: id}]
	s.state.mu.RUnlock()
	return ok, nil
}
