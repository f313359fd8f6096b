// Package hier implements a multi-tenant, four-level context hierarchy
// (global → project → branch → task) with inheritance resolution, upward
// delegation, and cached resolution with cascading invalidation.
//
// Responsibilities:
//   - LevelStore is the persistence-facing contract; one bound store per
//     level, every operation scoped to the owning user.
//   - Validator checks that a context's immediate parent is resolvable
//     before creation and produces actionable Guidance when it is not.
//   - Resolver walks the ancestor chain and merges each level's data
//     root-to-leaf into a single effective document with provenance.
//   - ResolutionCache memoizes resolved documents keyed by version
//     fingerprints and evicts every cached descendant on any write.
//   - Service composes the above into the public create/get/update/delete/
//     resolve/delegate/list operations.
//
// Data flow:
//
//	Service -> Validator -> LevelStore -> ResolutionCache.Invalidate
//	Service.Resolve -> Resolver (cache miss) -> ResolutionCache.Store
//
// The engine performs no I/O of its own beyond the LevelStore contract and
// trusts the caller-supplied owner identity; see pkg/store for store
// implementations.
package hier
