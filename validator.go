package hier

import (
	"context"
	"errors"
	"fmt"
)

// Validator enforces the structural invariant that a non-global context can
// only exist under a resolvable ancestor chain. It never mutates anything
// except through AutoCreateParents, which callers opt into explicitly.
type Validator struct {
	stores StoreSet
}

// NewValidator constructs a Validator over the given stores.
func NewValidator(stores StoreSet) *Validator {
	return &Validator{stores: stores}
}

// ParentID determines the immediate parent for a creation request and
// returns a *GuidanceError when the parent cannot be resolved. The global
// level has no parent and always validates.
//
// Placement fields: branch requests must carry data.project_id, task
// requests data.branch_id. The guidance payload names the missing level so
// callers can self-heal.
func (v *Validator) ParentID(ctx context.Context, owner string, level Level, id string, data Data) (string, error) {
	switch level {
	case LevelGlobal:
		return "", nil
	case LevelProject:
		root, err := globalOf(ctx, v.stores.Global, owner)
		if err != nil {
			return "", err
		}
		if root == nil {
			return "", missingParentGuidance(level, id, LevelGlobal, "")
		}
		return root.ID, nil
	case LevelBranch:
		return v.placementParent(ctx, owner, level, id, data, ProjectIDKey, v.stores.Project)
	case LevelTask:
		return v.placementParent(ctx, owner, level, id, data, BranchIDKey, v.stores.Branch)
	default:
		return "", fmt.Errorf("hier: invalid level %d", level)
	}
}

func (v *Validator) placementParent(ctx context.Context, owner string, level Level, id string, data Data, field string, parentStore LevelStore) (string, error) {
	parentID := data.StringField(field)
	if parentID == "" {
		return "", missingFieldGuidance(level, id, field, parentStore.Level())
	}
	ok, err := parentStore.Exists(ctx, owner, parentID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missingParentGuidance(level, id, parentStore.Level(), parentID)
	}
	return parentID, nil
}

// AutoCreateParents creates every missing ancestor for a creation request,
// top-down, with empty data, short-circuiting levels that already exist.
// Creation order makes the chain atomic by construction: each step only
// requires its own immediate parent, so a mid-chain failure never leaves a
// context referencing a non-existent further ancestor.
//
// Placement ids cannot be invented: a task request whose branch is missing
// still needs data.project_id to place that branch, and the returned
// guidance says so.
func (v *Validator) AutoCreateParents(ctx context.Context, owner string, level Level, id string, data Data) (string, error) {
	if level == LevelGlobal {
		return "", nil
	}
	root, err := v.ensureGlobal(ctx, owner)
	if err != nil {
		return "", err
	}
	if level == LevelProject {
		return root.ID, nil
	}

	projectID := data.StringField(ProjectIDKey)
	branchID := data.StringField(BranchIDKey)

	if level == LevelBranch {
		if projectID == "" {
			return "", missingFieldGuidance(level, id, ProjectIDKey, LevelProject)
		}
		if err := v.ensure(ctx, v.stores.Project, owner, projectID, root.ID); err != nil {
			return "", err
		}
		return projectID, nil
	}

	// Task: the branch may itself be missing and need placing.
	if branchID == "" {
		return "", missingFieldGuidance(level, id, BranchIDKey, LevelBranch)
	}
	exists, err := v.stores.Branch.Exists(ctx, owner, branchID)
	if err != nil {
		return "", err
	}
	if !exists {
		if projectID == "" {
			return "", missingFieldGuidance(level, id, ProjectIDKey, LevelProject)
		}
		if err := v.ensure(ctx, v.stores.Project, owner, projectID, root.ID); err != nil {
			return "", err
		}
		if err := v.ensure(ctx, v.stores.Branch, owner, branchID, projectID); err != nil {
			return "", err
		}
	}
	return branchID, nil
}

// ensureGlobal returns the owner's global root, creating one under
// DefaultGlobalID when absent. A concurrent creation racing this call is
// absorbed by re-reading the singleton.
func (v *Validator) ensureGlobal(ctx context.Context, owner string) (*Context, error) {
	root, err := globalOf(ctx, v.stores.Global, owner)
	if err != nil || root != nil {
		return root, err
	}
	created, err := v.stores.Global.Create(ctx, &Context{
		ID:          DefaultGlobalID,
		Level:       LevelGlobal,
		OwnerUserID: owner,
		Data:        Data{},
	})
	if err == nil {
		return created, nil
	}
	if errors.Is(err, ErrAlreadyExists) {
		return globalOf(ctx, v.stores.Global, owner)
	}
	return nil, err
}

func (v *Validator) ensure(ctx context.Context, store LevelStore, owner, id, parentID string) error {
	exists, err := store.Exists(ctx, owner, id)
	if err != nil || exists {
		return err
	}
	_, err = store.Create(ctx, &Context{
		ID:          id,
		Level:       store.Level(),
		OwnerUserID: owner,
		ParentID:    parentID,
		Data:        Data{},
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}
