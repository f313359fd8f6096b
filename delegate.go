package hier

import (
	"context"
	"fmt"
)

// Delegator pushes a value discovered at a lower level up into an ancestor's
// custom bucket. Delegation writes never touch named policy fields, so a
// delegated key can only ever collide inside the custom namespace.
type Delegator struct {
	stores   StoreSet
	resolver *Resolver
}

// NewDelegator constructs a Delegator over the given stores.
func NewDelegator(stores StoreSet, resolver *Resolver) *Delegator {
	return &Delegator{stores: stores, resolver: resolver}
}

// DelegateUp walks the chain from (fromLevel, fromID) to confirm that
// targetLevel is a strict ancestor for this owner, then sets
// data.custom[key] = value on that ancestor. Returns the updated ancestor.
func (d *Delegator) DelegateUp(ctx context.Context, owner string, fromLevel Level, fromID string, targetLevel Level, key string, value any) (*Context, error) {
	if key == "" {
		return nil, fmt.Errorf("hier: delegation key must not be empty")
	}
	if !targetLevel.Above(fromLevel) {
		return nil, fmt.Errorf("%w: %s is not above %s", ErrNotAnAncestor, targetLevel, fromLevel)
	}

	chain, err := d.resolver.Chain(ctx, owner, fromLevel, fromID)
	if err != nil {
		return nil, err
	}

	var target *Context
	for _, node := range chain[:len(chain)-1] {
		if node.Level == targetLevel {
			target = node
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no %s context on the chain of %s %q",
			ErrNotAnAncestor, targetLevel, fromLevel, fromID)
	}

	patch := Data{CustomKey: map[string]any{key: value}}
	return d.stores.For(targetLevel).Update(ctx, owner, target.ID, patch, 0)
}
