package service

import (
	"testing"
	"time"

	"cumulus/internal/server/database"
)

func TestFolderNode(t *testing.T) {
	created := time.Now()
	f := &database.Folder{
		ID:             "folder-1",
		OwnerID:        "owner-1",
		Name:           "Docs",
		ParentIDPath:   []string{"root-1"},
		ParentNamePath: []string{"Home"},
		Size:           42,
		CreatedAt:      created,
	}

	n := folderNode(f)
	if n.Kind != KindFolder {
		t.Errorf("Kind = %q, want %q", n.Kind, KindFolder)
	}
	if n.ID != "folder-1" || n.Name != "Docs" || n.Size != 42 {
		t.Errorf("unexpected node: %+v", n)
	}
	if n.Shared {
		t.Error("folder without share key reported shared")
	}

	f.ShareKeyHash = []byte{1, 2, 3}
	if !folderNode(f).Shared {
		t.Error("folder with share key not reported shared")
	}
}

func TestFileNode(t *testing.T) {
	encoding := "gzip"
	f := &database.File{
		ID:             "file-1",
		OwnerID:        "owner-1",
		Name:           "notes.txt",
		ParentIDPath:   []string{"folder-1"},
		ParentNamePath: []string{"Docs"},
		Shared:         true,
		Parts:          3,
		Size:           1000,
		EncodedSize:    400,
		Encoding:       &encoding,
		Type:           "text/plain",
	}

	n := fileNode(f)
	if n.Kind != KindFile {
		t.Errorf("Kind = %q, want %q", n.Kind, KindFile)
	}
	if n.Type != "text/plain" || n.Parts != 3 || n.EncodedSize != 400 {
		t.Errorf("unexpected node: %+v", n)
	}
	if n.Encoding == nil || *n.Encoding != "gzip" {
		t.Error("encoding not carried over")
	}
	if !n.Shared {
		t.Error("shared flag not carried over")
	}
}

func TestNodeViewsOrder(t *testing.T) {
	folders := []*database.Folder{{ID: "d1", Name: "a"}, {ID: "d2", Name: "b"}}
	files := []*database.File{{ID: "f1", Name: "c"}}

	nodes := nodeViews(folders, files)
	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	// Folders come first
	if nodes[0].Kind != KindFolder || nodes[1].Kind != KindFolder || nodes[2].Kind != KindFile {
		t.Errorf("unexpected kind order: %s %s %s", nodes[0].Kind, nodes[1].Kind, nodes[2].Kind)
	}
}
