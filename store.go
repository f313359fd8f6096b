package hier

import (
	"context"
	"fmt"
)

// ListFilter narrows a store listing. The zero value matches every context
// the owner holds at the store's level.
type ListFilter struct {
	// ParentID restricts results to direct children of the given parent.
	ParentID string
	// IDs restricts results to the given ids when non-empty.
	IDs []string
}

// LevelStore is the persistence contract for a single hierarchy level.
// All operations are implicitly scoped to the caller's owner id; no
// implementation may observe or mutate another user's contexts.
//
// Error kinds implementations must honor:
//   - Get/Update/Delete on an absent id return ErrNotFound.
//   - Create returns ErrAlreadyExists on an id collision, and for the
//     global level whenever the owner already holds a global context.
//   - Update with expectedVersion > 0 compares-and-swaps against the stored
//     version and returns ErrConcurrentModification on mismatch;
//     expectedVersion <= 0 disables the check. Every successful update
//     strictly increases the stored version by one.
type LevelStore interface {
	Level() Level
	Get(ctx context.Context, owner, id string) (*Context, error)
	Create(ctx context.Context, record *Context) (*Context, error)
	Update(ctx context.Context, owner, id string, patch Data, expectedVersion int64) (*Context, error)
	Delete(ctx context.Context, owner, id string) error
	List(ctx context.Context, owner string, filter ListFilter) ([]*Context, error)
	Exists(ctx context.Context, owner, id string) (bool, error)
}

// StoreSet binds one LevelStore per hierarchy level.
type StoreSet struct {
	Global  LevelStore
	Project LevelStore
	Branch  LevelStore
	Task    LevelStore
}

// For returns the store bound to level, or nil for an invalid level.
func (s StoreSet) For(level Level) LevelStore {
	switch level {
	case LevelGlobal:
		return s.Global
	case LevelProject:
		return s.Project
	case LevelBranch:
		return s.Branch
	case LevelTask:
		return s.Task
	default:
		return nil
	}
}

// Validate checks that every level is bound to a store reporting the
// matching level.
func (s StoreSet) Validate() error {
	for level := LevelGlobal; level <= LevelTask; level++ {
		store := s.For(level)
		if store == nil {
			return fmt.Errorf("hier: store set is missing the %s level", level)
		}
		if store.Level() != level {
			return fmt.Errorf("hier: store bound to %s reports level %s", level, store.Level())
		}
	}
	return nil
}

// globalOf locates the owner's per-user global root, or nil when the owner
// has none yet.
func globalOf(ctx context.Context, store LevelStore, owner string) (*Context, error) {
	roots, err := store.List(ctx, owner, ListFilter{})
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	return roots[0], nil
}
