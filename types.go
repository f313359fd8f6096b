package hier

import (
	"time"
)

// Level identifies a rung in the fixed four-tier hierarchy. Every level
// except LevelGlobal has exactly one parent level.
type Level int

const (
	// LevelUnknown guards against misconfiguration so call sites can detect
	// missing or unparsable level values.
	LevelUnknown Level = iota
	// LevelGlobal is the per-user root of the hierarchy.
	LevelGlobal
	// LevelProject groups branches under a user's global root.
	LevelProject
	// LevelBranch groups tasks under a project.
	LevelBranch
	// LevelTask is the leaf level.
	LevelTask
)

func (l Level) String() string {
	switch l {
	case LevelGlobal:
		return "global"
	case LevelProject:
		return "project"
	case LevelBranch:
		return "branch"
	case LevelTask:
		return "task"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string representation into the corresponding Level.
// Returns LevelUnknown for unrecognised values.
func ParseLevel(value string) Level {
	switch value {
	case "global", "GLOBAL":
		return LevelGlobal
	case "project", "PROJECT":
		return LevelProject
	case "branch", "BRANCH":
		return LevelBranch
	case "task", "TASK":
		return LevelTask
	default:
		return LevelUnknown
	}
}

// Valid reports whether l names one of the four hierarchy levels.
func (l Level) Valid() bool {
	return l >= LevelGlobal && l <= LevelTask
}

// Parent returns the level one rung above l, or LevelUnknown when l is the
// root (or invalid).
func (l Level) Parent() Level {
	if l <= LevelGlobal || l > LevelTask {
		return LevelUnknown
	}
	return l - 1
}

// Child returns the level one rung below l, or LevelUnknown when l is the
// leaf (or invalid).
func (l Level) Child() Level {
	if l < LevelGlobal || l >= LevelTask {
		return LevelUnknown
	}
	return l + 1
}

// Above reports whether l is a strict ancestor level of other.
func (l Level) Above(other Level) bool {
	return l.Valid() && other.Valid() && l < other
}

// Reserved keys inside a context's data document.
const (
	// CustomKey is the free-form bucket merged within its own namespace and
	// the only place delegation writes into.
	CustomKey = "custom"
	// ProjectIDKey carries the project placement for branch-level requests.
	ProjectIDKey = "project_id"
	// BranchIDKey carries the branch placement for task-level requests.
	BranchIDKey = "branch_id"
	// ResolvedFromKey annotates a merged document with the levels that
	// contributed to it, root first.
	ResolvedFromKey = "_resolved_from"
)

// DefaultGlobalID is the id assigned to auto-created global roots. Callers
// creating their global context explicitly may pick any id; the global
// context stays a per-user singleton either way.
const DefaultGlobalID = "global"

// Data is the open-schema document carried by every context. Levels define
// conventional sub-keys (organization standards, security policies, ...)
// plus the reserved "custom" bucket; the engine validates structure only.
type Data map[string]any

// Clone returns a deep copy of d. Mutating the copy never affects d.
func (d Data) Clone() Data {
	return cloneData(d)
}

// StringField returns the string stored under key, or "" when the key is
// absent or holds a non-string value.
func (d Data) StringField(key string) string {
	if d == nil {
		return ""
	}
	value, ok := d[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Custom returns the reserved custom bucket, or nil when absent or not a
// mapping.
func (d Data) Custom() map[string]any {
	if d == nil {
		return nil
	}
	bucket, _ := d[CustomKey].(map[string]any)
	return bucket
}

// Context is one entity in the hierarchy, parameterized by Level.
type Context struct {
	ID          string    `json:"id"`
	Level       Level     `json:"-"`
	OwnerUserID string    `json:"owner_user_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Data        Data      `json:"data"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of c so stored records stay detached from
// caller-held references.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Data = cloneData(c.Data)
	return &clone
}
