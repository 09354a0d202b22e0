package service

import (
	"time"

	"cumulus/internal/server/database"
)

// Node kinds.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Node is the externally visible view of a hierarchy entry, a tagged union
// over files and folders. It never carries the owner id, so the same shape
// serves both owner listings and share-key resolutions.
type Node struct {
	Kind           string    `json:"kind"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ParentIDPath   []string  `json:"parent_id_path"`
	ParentNamePath []string  `json:"parent_name_path"`
	Size           int64     `json:"size"`
	Shared         bool      `json:"shared"`
	CreatedAt      time.Time `json:"created_at"`

	// File-only fields.
	Type        string  `json:"type,omitempty"`
	Encoding    *string `json:"encoding,omitempty"`
	Parts       int     `json:"parts,omitempty"`
	EncodedSize int64   `json:"encoded_size,omitempty"`
}

func folderNode(f *database.Folder) Node {
	return Node{
		Kind:           KindFolder,
		ID:             f.ID,
		Name:           f.Name,
		ParentIDPath:   f.ParentIDPath,
		ParentNamePath: f.ParentNamePath,
		Size:           f.Size,
		Shared:         f.ShareKeyHash != nil,
		CreatedAt:      f.CreatedAt,
	}
}

func fileNode(f *database.File) Node {
	return Node{
		Kind:           KindFile,
		ID:             f.ID,
		Name:           f.Name,
		ParentIDPath:   f.ParentIDPath,
		ParentNamePath: f.ParentNamePath,
		Size:           f.Size,
		Shared:         f.Shared,
		CreatedAt:      f.CreatedAt,
		Type:           f.Type,
		Encoding:       f.Encoding,
		Parts:          f.Parts,
		EncodedSize:    f.EncodedSize,
	}
}

func nodeViews(folders []*database.Folder, files []*database.File) []Node {
	out := make([]Node, 0, len(folders)+len(files))
	for _, f := range folders {
		out = append(out, folderNode(f))
	}
	for _, f := range files {
		out = append(out, fileNode(f))
	}
	return out
}
