package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"cumulus/internal/server/config"
	"cumulus/internal/server/database"
	"cumulus/internal/server/storage"
)

// HierarchyService owns the file and folder tree of each user. Every
// mutation runs in a serializable transaction so the materialized paths,
// the per-parent namespace and the aggregated folder sizes stay consistent
// under concurrency; conflicting transactions retry and eventually surface
// ErrConflict.
type HierarchyService struct {
	db    *database.DB
	store storage.Store
	cfg   *config.Config
}

func NewHierarchyService(db *database.DB, store storage.Store, cfg *config.Config) *HierarchyService {
	return &HierarchyService{db: db, store: store, cfg: cfg}
}

// resolveParent turns an optional parent folder id into the ancestor paths
// a child of that parent carries. A nil parent means the root, which is not
// a row; its children carry empty paths.
func resolveParent(ctx context.Context, nodes *database.NodeRepo, ownerID string, parentID *string) (idPath, namePath []string, err error) {
	if parentID == nil {
		return []string{}, []string{}, nil
	}
	parent, err := nodes.GetFolder(ctx, ownerID, *parentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrParentNotFound
		}
		return nil, nil, err
	}
	return parent.ChildIDPath(), parent.ChildNamePath(), nil
}

// CreateFolder creates an empty folder under the given parent (nil for the
// root).
func (s *HierarchyService) CreateFolder(ctx context.Context, ownerID string, parentID *string, name string) (*Node, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}

	folder := &database.Folder{
		ID:        newID(),
		OwnerID:   ownerID,
		Name:      name,
		Size:      0,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		idPath, namePath, err := resolveParent(ctx, nodes, ownerID, parentID)
		if err != nil {
			return err
		}
		folder.ParentIDPath = idPath
		folder.ParentNamePath = namePath

		taken, err := nodes.NameTaken(ctx, ownerID, namePath, name)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}
		return nodes.InsertFolder(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	n := folderNode(folder)
	return &n, nil
}

// UploadFile streams content into the store part by part, then records the
// file row and bumps every ancestor's size in one transaction. Text-like
// content is gzip-encoded in transit to the store; the logical size always
// counts the original bytes.
//
// Parts are written before the row exists, so a failed upload leaves no
// visible node; leftover parts are deleted best-effort.
func (s *HierarchyService) UploadFile(ctx context.Context, ownerID string, parentID *string, name, contentType string, r io.Reader) (*Node, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}

	file := &database.File{
		ID:        newID(),
		OwnerID:   ownerID,
		Name:      name,
		Type:      contentType,
		CreatedAt: time.Now().UTC(),
	}

	pw := storage.NewPartWriter(ctx, s.store, file.ID, s.cfg.PartSize)
	var w io.Writer = pw
	var enc io.WriteCloser
	if storage.Compressible(contentType) {
		codec := storage.GzipCodec{}
		enc = codec.NewWriter(pw)
		w = enc
		encoding := codec.Encoding()
		file.Encoding = &encoding
	}

	size, err := io.Copy(w, io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err == nil && size > s.cfg.MaxFileSize {
		err = ErrFileTooLarge
	}
	if err == nil && enc != nil {
		err = enc.Close()
	}
	if err == nil {
		err = pw.Close()
	}
	if err != nil {
		s.cleanupParts(file.ID, pw.Parts())
		return nil, err
	}

	file.Size = size
	file.EncodedSize = pw.BytesWritten()
	file.Parts = pw.Parts()

	err = s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		idPath, namePath, err := resolveParent(ctx, nodes, ownerID, parentID)
		if err != nil {
			return err
		}
		file.ParentIDPath = idPath
		file.ParentNamePath = namePath

		taken, err := nodes.NameTaken(ctx, ownerID, namePath, name)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}
		if err := nodes.InsertFile(ctx, file); err != nil {
			return err
		}
		return nodes.AddSizeToFolders(ctx, ownerID, idPath, file.Size)
	})
	if err != nil {
		s.cleanupParts(file.ID, file.Parts)
		return nil, err
	}

	n := fileNode(file)
	return &n, nil
}

// DownloadFile opens a file's content as one decoded stream. The caller
// must close the reader.
func (s *HierarchyService) DownloadFile(ctx context.Context, ownerID, fileID string) (*database.File, io.ReadCloser, error) {
	file, err := database.NewNodeRepo(s.db.Pool).GetFile(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	rc, err := openContent(ctx, s.store, file)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// openContent builds the part-concatenating, decoding read pipeline for a
// file row.
func openContent(ctx context.Context, store storage.Store, file *database.File) (io.ReadCloser, error) {
	pr := storage.NewPartReader(ctx, store, file.ID, file.Parts)
	if file.Encoding == nil {
		return pr, nil
	}

	codec, ok := storage.CodecFor(*file.Encoding)
	if !ok {
		pr.Close()
		return nil, fmt.Errorf("unknown content encoding %q", *file.Encoding)
	}
	dec, err := codec.NewReader(pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to open decoder: %w", err)
	}
	return &decodedReader{dec: dec, raw: pr}, nil
}

type decodedReader struct {
	dec io.ReadCloser
	raw io.Closer
}

func (d *decodedReader) Read(p []byte) (int, error) { return d.dec.Read(p) }

func (d *decodedReader) Close() error {
	err := d.dec.Close()
	if rawErr := d.raw.Close(); err == nil {
		err = rawErr
	}
	return err
}

// RenameFile gives a file a new name within its parent.
func (s *HierarchyService) RenameFile(ctx context.Context, ownerID, id, newName string) error {
	if !validName(newName) {
		return ErrInvalidName
	}
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		file, err := nodes.GetFile(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if file.Name == newName {
			return nil
		}
		taken, err := nodes.NameTaken(ctx, ownerID, file.ParentNamePath, newName)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}
		return nodes.RenameFile(ctx, ownerID, id, newName)
	})
}

// RenameFolder gives a folder a new name and rewrites the matching name
// path element of every descendant in one bulk statement. Descendant id
// paths never change on rename.
func (s *HierarchyService) RenameFolder(ctx context.Context, ownerID, id, newName string) error {
	if !validName(newName) {
		return ErrInvalidName
	}
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		folder, err := nodes.GetFolder(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if folder.Name == newName {
			return nil
		}
		taken, err := nodes.NameTaken(ctx, ownerID, folder.ParentNamePath, newName)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}
		if err := nodes.RenameFolder(ctx, ownerID, id, newName); err != nil {
			return err
		}
		return nodes.CascadeRename(ctx, ownerID, id, folder.Depth(), newName)
	})
}

// MoveFile reparents a file (nil destination means the root) and shifts its
// size from the old ancestor chain to the new one.
func (s *HierarchyService) MoveFile(ctx context.Context, ownerID, id string, destID *string) error {
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		file, err := nodes.GetFile(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		newIDPath, newNamePath, err := resolveParent(ctx, nodes, ownerID, destID)
		if err != nil {
			return err
		}
		if samePath(file.ParentIDPath, newIDPath) {
			return nil
		}

		taken, err := nodes.NameTaken(ctx, ownerID, newNamePath, file.Name)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}

		if err := nodes.SetFilePaths(ctx, ownerID, id, newIDPath, newNamePath); err != nil {
			return err
		}
		if err := nodes.AddSizeToFolders(ctx, ownerID, file.ParentIDPath, -file.Size); err != nil {
			return err
		}
		return nodes.AddSizeToFolders(ctx, ownerID, newIDPath, file.Size)
	})
}

// MoveFolder reparents a whole subtree. The folder's own paths are
// rewritten directly; every descendant gets its ancestor-path prefix
// replaced in one bulk statement. Moving a folder into itself or any of
// its descendants is refused.
func (s *HierarchyService) MoveFolder(ctx context.Context, ownerID, id string, destID *string) error {
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		folder, err := nodes.GetFolder(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		newIDPath, newNamePath, err := resolveParent(ctx, nodes, ownerID, destID)
		if err != nil {
			return err
		}
		for _, ancestor := range newIDPath {
			if ancestor == id {
				return ErrCyclicMove
			}
		}
		if destID != nil && *destID == id {
			return ErrCyclicMove
		}
		if samePath(folder.ParentIDPath, newIDPath) {
			return nil
		}

		taken, err := nodes.NameTaken(ctx, ownerID, newNamePath, folder.Name)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}

		oldDepth := folder.Depth()
		if err := nodes.CascadeMove(ctx, ownerID, id, oldDepth, newIDPath, newNamePath); err != nil {
			return err
		}
		if err := nodes.SetFolderPaths(ctx, ownerID, id, newIDPath, newNamePath); err != nil {
			return err
		}
		if err := nodes.AddSizeToFolders(ctx, ownerID, folder.ParentIDPath, -folder.Size); err != nil {
			return err
		}
		return nodes.AddSizeToFolders(ctx, ownerID, newIDPath, folder.Size)
	})
}

// DeleteFile removes a file row, subtracts its size from every ancestor and
// purges its content parts. Part deletion happens after commit and is
// best-effort.
func (s *HierarchyService) DeleteFile(ctx context.Context, ownerID, id string) error {
	var parts int
	err := s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		file, err := nodes.GetFile(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		parts = file.Parts

		if err := nodes.DeleteFileRow(ctx, ownerID, id); err != nil {
			return err
		}
		return nodes.AddSizeToFolders(ctx, ownerID, file.ParentIDPath, -file.Size)
	})
	if err != nil {
		return err
	}

	s.cleanupParts(id, parts)
	return nil
}

// DeleteFolder removes a folder and its whole subtree in bulk, then purges
// the content of every deleted file.
func (s *HierarchyService) DeleteFolder(ctx context.Context, ownerID, id string) error {
	fileParts := make(map[string]int)
	err := s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		clear(fileParts)

		nodes := database.NewNodeRepo(tx)
		folder, err := nodes.GetFolder(ctx, ownerID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		files, err := nodes.SubtreeFiles(ctx, ownerID, id, folder.Depth())
		if err != nil {
			return err
		}
		for _, f := range files {
			fileParts[f.ID] = f.Parts
		}

		if err := nodes.DeleteSubtree(ctx, ownerID, id, folder.Depth()); err != nil {
			return err
		}
		return nodes.AddSizeToFolders(ctx, ownerID, folder.ParentIDPath, -folder.Size)
	})
	if err != nil {
		return err
	}

	for fileID, parts := range fileParts {
		s.cleanupParts(fileID, parts)
	}
	return nil
}

// ListChildren returns the direct children of a folder (nil for the root),
// folders first, each group sorted by name.
func (s *HierarchyService) ListChildren(ctx context.Context, ownerID string, folderID *string) ([]Node, error) {
	nodes := database.NewNodeRepo(s.db.Pool)
	idPath, _, err := resolveParent(ctx, nodes, ownerID, folderID)
	if err != nil {
		return nil, err
	}

	folders, err := nodes.ListChildFolders(ctx, ownerID, idPath)
	if err != nil {
		return nil, err
	}
	files, err := nodes.ListChildFiles(ctx, ownerID, idPath)
	if err != nil {
		return nil, err
	}
	return nodeViews(folders, files), nil
}

// ListSubtree returns every node below a folder, in path order.
func (s *HierarchyService) ListSubtree(ctx context.Context, ownerID, folderID string) ([]Node, error) {
	nodes := database.NewNodeRepo(s.db.Pool)
	folder, err := nodes.GetFolder(ctx, ownerID, folderID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	folders, err := nodes.SubtreeFolders(ctx, ownerID, folderID, folder.Depth())
	if err != nil {
		return nil, err
	}
	files, err := nodes.SubtreeFiles(ctx, ownerID, folderID, folder.Depth())
	if err != nil {
		return nil, err
	}
	return nodeViews(folders, files), nil
}

// GetFolderNode returns one folder as a view.
func (s *HierarchyService) GetFolderNode(ctx context.Context, ownerID, id string) (*Node, error) {
	folder, err := database.NewNodeRepo(s.db.Pool).GetFolder(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n := folderNode(folder)
	return &n, nil
}

// RepairSizes recomputes every folder size of the owner from the file rows.
func (s *HierarchyService) RepairSizes(ctx context.Context, ownerID string) error {
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		return database.NewNodeRepo(tx).RepairSizes(ctx, ownerID)
	})
}

func (s *HierarchyService) cleanupParts(fileID string, parts int) {
	if parts == 0 {
		return
	}
	// Detached from the request context so an aborted request still cleans up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.DeleteParts(ctx, fileID, parts); err != nil {
		slog.Warn("failed to delete content parts", "file_id", fileID, "error", err)
	}
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
