package hier_test

import (
	"context"
	"testing"

	hier "github.com/phamhung075/4genthub-sub021"
	"github.com/phamhung075/4genthub-sub021/pkg/store"
)

func TestValidatorGlobalNeedsNoParent(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)

	parentID, err := validator.ParentID(context.Background(), "u1", hier.LevelGlobal, hier.DefaultGlobalID, nil)
	if err != nil {
		t.Fatalf("ParentID: %v", err)
	}
	if parentID != "" {
		t.Fatalf("global parent id = %q, want empty", parentID)
	}
}

func TestValidatorProjectGuidanceWhenGlobalMissing(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)

	_, err := validator.ParentID(context.Background(), "u1", hier.LevelProject, "p1", nil)
	guidance, ok := hier.AsGuidance(err)
	if !ok {
		t.Fatalf("expected *GuidanceError, got %v", err)
	}
	if guidance.Guidance.MissingLevel != hier.LevelGlobal {
		t.Fatalf("missing level = %v, want global", guidance.Guidance.MissingLevel)
	}
	if len(guidance.Guidance.RemediationSteps) == 0 {
		t.Fatalf("guidance must carry remediation steps")
	}
}

func TestValidatorBranchGuidanceNamesProjectID(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)
	seedChain(t, stores, "u1")

	// Missing placement field.
	_, err := validator.ParentID(context.Background(), "u1", hier.LevelBranch, "b2", hier.Data{})
	guidance, ok := hier.AsGuidance(err)
	if !ok {
		t.Fatalf("expected *GuidanceError, got %v", err)
	}
	if guidance.Guidance.MissingLevel != hier.LevelProject {
		t.Fatalf("missing level = %v, want project", guidance.Guidance.MissingLevel)
	}

	// Placement field naming an absent project.
	_, err = validator.ParentID(context.Background(), "u1", hier.LevelBranch, "b2", hier.Data{
		hier.ProjectIDKey: "ghost",
	})
	guidance, ok = hier.AsGuidance(err)
	if !ok {
		t.Fatalf("expected *GuidanceError, got %v", err)
	}
	if guidance.Guidance.MissingLevel != hier.LevelProject || guidance.Guidance.MissingID != "ghost" {
		t.Fatalf("guidance = %+v, want project/ghost", guidance.Guidance)
	}

	// Valid placement.
	parentID, err := validator.ParentID(context.Background(), "u1", hier.LevelBranch, "b2", hier.Data{
		hier.ProjectIDKey: "p1",
	})
	if err != nil {
		t.Fatalf("ParentID: %v", err)
	}
	if parentID != "p1" {
		t.Fatalf("parent id = %q, want p1", parentID)
	}
}

func TestValidatorAutoCreateBuildsMissingChain(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)

	parentID, err := validator.AutoCreateParents(context.Background(), "u1", hier.LevelTask, "t1", hier.Data{
		hier.ProjectIDKey: "p1",
		hier.BranchIDKey:  "b1",
	})
	if err != nil {
		t.Fatalf("AutoCreateParents: %v", err)
	}
	if parentID != "b1" {
		t.Fatalf("parent id = %q, want b1", parentID)
	}

	global, err := stores.Global.Get(context.Background(), "u1", hier.DefaultGlobalID)
	if err != nil {
		t.Fatalf("global root not created: %v", err)
	}
	if global.ParentID != "" {
		t.Fatalf("global root must have no parent, got %q", global.ParentID)
	}
	project, err := stores.Project.Get(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("project not created: %v", err)
	}
	if project.ParentID != global.ID {
		t.Fatalf("project parent = %q, want %q", project.ParentID, global.ID)
	}
	branch, err := stores.Branch.Get(context.Background(), "u1", "b1")
	if err != nil {
		t.Fatalf("branch not created: %v", err)
	}
	if branch.ParentID != "p1" {
		t.Fatalf("branch parent = %q, want p1", branch.ParentID)
	}
}

func TestValidatorAutoCreateIsIdempotent(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)
	data := hier.Data{hier.ProjectIDKey: "p1", hier.BranchIDKey: "b1"}

	if _, err := validator.AutoCreateParents(context.Background(), "u1", hier.LevelTask, "t1", data); err != nil {
		t.Fatalf("first AutoCreateParents: %v", err)
	}
	project, err := stores.Project.Update(context.Background(), "u1", "p1", hier.Data{"note": "kept"}, 0)
	if err != nil {
		t.Fatalf("seed project data: %v", err)
	}

	if _, err := validator.AutoCreateParents(context.Background(), "u1", hier.LevelTask, "t2", data); err != nil {
		t.Fatalf("second AutoCreateParents: %v", err)
	}
	again, err := stores.Project.Get(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("Get project: %v", err)
	}
	if again.Version != project.Version {
		t.Fatalf("existing project was touched: version %d -> %d", project.Version, again.Version)
	}
	if again.Data["note"] != "kept" {
		t.Fatalf("existing project data was overwritten: %+v", again.Data)
	}
}

func TestValidatorAutoCreateTaskNeedsProjectForMissingBranch(t *testing.T) {
	stores := store.NewMemoryStores()
	validator := hier.NewValidator(stores)

	_, err := validator.AutoCreateParents(context.Background(), "u1", hier.LevelTask, "t1", hier.Data{
		hier.BranchIDKey: "b1",
	})
	guidance, ok := hier.AsGuidance(err)
	if !ok {
		t.Fatalf("expected *GuidanceError, got %v", err)
	}
	if guidance.Guidance.MissingLevel != hier.LevelProject {
		t.Fatalf("missing level = %v, want project", guidance.Guidance.MissingLevel)
	}
}

// seedChain creates global/p1/b1/t1 for owner through the raw stores.
func seedChain(t *testing.T, stores hier.StoreSet, owner string) {
	t.Helper()
	mustCreate(t, stores.Global, &hier.Context{ID: hier.DefaultGlobalID, OwnerUserID: owner, Data: hier.Data{}})
	mustCreate(t, stores.Project, &hier.Context{ID: "p1", OwnerUserID: owner, ParentID: hier.DefaultGlobalID, Data: hier.Data{}})
	mustCreate(t, stores.Branch, &hier.Context{ID: "b1", OwnerUserID: owner, ParentID: "p1", Data: hier.Data{}})
	mustCreate(t, stores.Task, &hier.Context{ID: "t1", OwnerUserID: owner, ParentID: "b1", Data: hier.Data{}})
}

func mustCreate(t *testing.T, s hier.LevelStore, record *hier.Context) *hier.Context {
	t.Helper()
	created, err := s.Create(context.Background(), record)
	if err != nil {
		t.Fatalf("create %s %q: %v", s.Level(), record.ID, err)
	}
	return created
}
