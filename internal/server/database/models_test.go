package database

import (
	"testing"
)

func TestFolderDepth(t *testing.T) {
	top := &Folder{ID: "a"}
	if top.Depth() != 0 {
		t.Errorf("top-level folder depth = %d, want 0", top.Depth())
	}

	nested := &Folder{
		ID:             "c",
		ParentIDPath:   []string{"a", "b"},
		ParentNamePath: []string{"A", "B"},
	}
	if nested.Depth() != 2 {
		t.Errorf("nested folder depth = %d, want 2", nested.Depth())
	}
}

func TestChildPaths(t *testing.T) {
	f := &Folder{
		ID:             "docs-id",
		Name:           "Docs",
		ParentIDPath:   []string{"root-id"},
		ParentNamePath: []string{"Home"},
	}

	idPath := f.ChildIDPath()
	namePath := f.ChildNamePath()

	if len(idPath) != 2 || idPath[0] != "root-id" || idPath[1] != "docs-id" {
		t.Errorf("ChildIDPath = %v", idPath)
	}
	if len(namePath) != 2 || namePath[0] != "Home" || namePath[1] != "Docs" {
		t.Errorf("ChildNamePath = %v", namePath)
	}
}

func TestChildPathsDoNotAlias(t *testing.T) {
	f := &Folder{
		ID:           "b",
		Name:         "B",
		ParentIDPath: []string{"a"},
	}

	child := f.ChildIDPath()
	child[0] = "mutated"
	if f.ParentIDPath[0] != "a" {
		t.Error("ChildIDPath shares backing array with ParentIDPath")
	}
}

func TestChildPathsTopLevel(t *testing.T) {
	f := &Folder{ID: "a", Name: "A"}
	if got := f.ChildIDPath(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ChildIDPath for top-level folder = %v", got)
	}
	if got := f.ChildNamePath(); len(got) != 1 || got[0] != "A" {
		t.Errorf("ChildNamePath for top-level folder = %v", got)
	}
}
