package hier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provenance records how one level contributed to a resolved document.
type Provenance struct {
	Level   Level  `json:"level"`
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Resolution is the effective view of a context: its own data merged under
// every ancestor's, root to leaf, with provenance for each contributing
// layer. Resolutions are read-side projections; producing one never mutates
// any stored context.
type Resolution struct {
	Owner        string       `json:"owner_user_id"`
	Level        Level        `json:"-"`
	ID           string       `json:"id"`
	Effective    Data         `json:"effective"`
	Own          Data         `json:"own"`
	ResolvedFrom []Level      `json:"-"`
	Layers       []Provenance `json:"layers"`
	SnapshotID   string       `json:"snapshot_id"`
	ResolvedAt   time.Time    `json:"resolved_at"`

	fingerprint string
}

// Fingerprint is the concatenation of every contributing layer's identity
// and version at resolution time. Two resolutions of the same context carry
// the same fingerprint iff no context on the chain changed in between.
func (r *Resolution) Fingerprint() string {
	if r == nil {
		return ""
	}
	return r.fingerprint
}

// Resolver walks ancestor chains and merges them into effective documents.
type Resolver struct {
	stores StoreSet
	clock  func() time.Time
	newID  func() string
}

// NewResolver constructs a Resolver over the given stores.
func NewResolver(stores StoreSet) *Resolver {
	return &Resolver{
		stores: stores,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// Chain loads the target context and every ancestor, returned root first.
// The walk fails ErrNotFound when the target itself is absent and
// ErrBrokenChain (via *ChainError) when a stored parent pointer does not
// resolve; the latter should not happen under the write-time invariants and
// is treated as corruption, never silently patched.
func (r *Resolver) Chain(ctx context.Context, owner string, level Level, id string) ([]*Context, error) {
	store := r.stores.For(level)
	if store == nil {
		return nil, fmt.Errorf("hier: invalid level %d", level)
	}
	current, err := store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	chain := []*Context{current}
	for current.Level != LevelGlobal {
		if err := ctx.Err(); err != nil {
			return nil, deadlineErr(err)
		}
		parentLevel := current.Level.Parent()
		parent, err := r.stores.For(parentLevel).Get(ctx, owner, current.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &ChainError{
					Owner:    owner,
					Level:    current.Level,
					ID:       current.ID,
					ParentID: current.ParentID,
				}
			}
			return nil, err
		}
		chain = append(chain, parent)
		current = parent
	}

	// Reverse to root-to-leaf merge order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Resolve walks the chain for (owner, level, id) and merges it.
func (r *Resolver) Resolve(ctx context.Context, owner string, level Level, id string) (*Resolution, error) {
	chain, err := r.Chain(ctx, owner, level, id)
	if err != nil {
		return nil, err
	}
	return r.MergeChain(owner, chain), nil
}

// MergeChain folds an already-walked chain (root first) into a Resolution.
func (r *Resolver) MergeChain(owner string, chain []*Context) *Resolution {
	layers := make([]Data, len(chain))
	provenance := make([]Provenance, len(chain))
	resolvedFrom := make([]Level, len(chain))
	for i, node := range chain {
		layers[i] = node.Data
		provenance[i] = Provenance{Level: node.Level, ID: node.ID, Version: node.Version}
		resolvedFrom[i] = node.Level
	}
	effective := MergeChain(layers...)
	effective[ResolvedFromKey] = levelNames(resolvedFrom)

	leaf := chain[len(chain)-1]
	return &Resolution{
		Owner:        owner,
		Level:        leaf.Level,
		ID:           leaf.ID,
		Effective:    effective,
		Own:          leaf.Data.Clone(),
		ResolvedFrom: resolvedFrom,
		Layers:       provenance,
		SnapshotID:   r.newID(),
		ResolvedAt:   r.clock(),
		fingerprint:  FingerprintChain(chain),
	}
}

// FingerprintChain derives the version fingerprint for a root-first chain.
func FingerprintChain(chain []*Context) string {
	parts := make([]string, len(chain))
	for i, node := range chain {
		parts[i] = fmt.Sprintf("%s:%s:%d", node.Level, node.ID, node.Version)
	}
	return strings.Join(parts, "|")
}

func levelNames(levels []Level) []string {
	names := make([]string, len(levels))
	for i, level := range levels {
		names[i] = level.String()
	}
	return names
}
