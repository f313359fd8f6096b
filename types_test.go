package hier

import "testing"

func TestParseLevelRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelGlobal, LevelProject, LevelBranch, LevelTask} {
		if got := ParseLevel(level.String()); got != level {
			t.Fatalf("ParseLevel(%q) = %v, want %v", level.String(), got, level)
		}
	}
	if got := ParseLevel("TASK"); got != LevelTask {
		t.Fatalf("expected upper-case parse, got %v", got)
	}
	if got := ParseLevel("tenant"); got != LevelUnknown {
		t.Fatalf("expected LevelUnknown for foreign value, got %v", got)
	}
}

func TestLevelNavigation(t *testing.T) {
	if got := LevelTask.Parent(); got != LevelBranch {
		t.Fatalf("task parent = %v", got)
	}
	if got := LevelGlobal.Parent(); got != LevelUnknown {
		t.Fatalf("global has no parent, got %v", got)
	}
	if got := LevelGlobal.Child(); got != LevelProject {
		t.Fatalf("global child = %v", got)
	}
	if got := LevelTask.Child(); got != LevelUnknown {
		t.Fatalf("task has no child, got %v", got)
	}
	if !LevelGlobal.Above(LevelTask) {
		t.Fatalf("global should be above task")
	}
	if LevelBranch.Above(LevelBranch) {
		t.Fatalf("a level is not a strict ancestor of itself")
	}
	if LevelTask.Above(LevelProject) {
		t.Fatalf("task is below project")
	}
	if LevelUnknown.Above(LevelTask) {
		t.Fatalf("unknown participates in no ordering")
	}
}

func TestDataHelpers(t *testing.T) {
	data := Data{
		ProjectIDKey: "p1",
		"count":      3,
		CustomKey:    map[string]any{"x": 1},
	}
	if got := data.StringField(ProjectIDKey); got != "p1" {
		t.Fatalf("StringField = %q", got)
	}
	if got := data.StringField("count"); got != "" {
		t.Fatalf("non-string field should read empty, got %q", got)
	}
	if got := data.Custom(); got["x"] != 1 {
		t.Fatalf("Custom() = %+v", got)
	}
	var empty Data
	if empty.StringField("anything") != "" || empty.Custom() != nil {
		t.Fatalf("nil Data helpers must be safe")
	}
}

func TestContextCloneDetachesData(t *testing.T) {
	original := &Context{
		ID:   "t1",
		Data: Data{"custom": map[string]any{"x": 1}},
	}
	clone := original.Clone()
	clone.Data["custom"].(map[string]any)["x"] = 2

	if original.Data["custom"].(map[string]any)["x"] != 1 {
		t.Fatalf("clone shares data with original")
	}
}
