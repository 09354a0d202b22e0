package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NodeRepo provides operations over the files and folders tables.
//
// Both tables carry the materialized ancestor chain of every row
// (parent_id_path / parent_name_path, ancestor-only, root to immediate
// parent). A folder at depth d owns exactly the rows whose parent_id_path
// has the folder's id at position d+1 (SQL arrays are 1-based), which lets
// every subtree query and cascade run as one bulk statement instead of a
// tree walk.
type NodeRepo struct {
	q Querier
}

func NewNodeRepo(q Querier) *NodeRepo {
	return &NodeRepo{q: q}
}

const folderColumns = "id, owner_id, name, parent_id_path, parent_name_path, share_key_hash, size, created_at"
const fileColumns = "id, owner_id, name, parent_id_path, parent_name_path, shared, parts, size, encoded_size, encoding, type, created_at"

func scanFolder(row pgx.Row) (*Folder, error) {
	f := &Folder{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentIDPath, &f.ParentNamePath, &f.ShareKeyHash, &f.Size, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan folder: %w", err)
	}
	return f, nil
}

func scanFile(row pgx.Row) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentIDPath, &f.ParentNamePath, &f.Shared, &f.Parts, &f.Size, &f.EncodedSize, &f.Encoding, &f.Type, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return f, nil
}

// GetFolder retrieves a folder owned by the given user.
func (r *NodeRepo) GetFolder(ctx context.Context, ownerID, id string) (*Folder, error) {
	row := r.q.QueryRow(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE owner_id = $1 AND id = $2", ownerID, id)
	return scanFolder(row)
}

// GetFile retrieves a file owned by the given user.
func (r *NodeRepo) GetFile(ctx context.Context, ownerID, id string) (*File, error) {
	row := r.q.QueryRow(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = $1 AND id = $2", ownerID, id)
	return scanFile(row)
}

// GetFolderByShareKeyHash retrieves a shared folder by the hash of its
// capability key, regardless of owner.
func (r *NodeRepo) GetFolderByShareKeyHash(ctx context.Context, keyHash []byte) (*Folder, error) {
	row := r.q.QueryRow(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE share_key_hash = $1", keyHash)
	return scanFolder(row)
}

// NameTaken reports whether any node (file or folder) with the given name
// already occupies the parent identified by parentNamePath. Files and
// folders share one per-parent namespace.
func (r *NodeRepo) NameTaken(ctx context.Context, ownerID string, parentNamePath []string, name string) (bool, error) {
	var taken bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM folders WHERE owner_id = $1 AND parent_name_path = $2 AND name = $3
		) OR EXISTS (
			SELECT 1 FROM files WHERE owner_id = $1 AND parent_name_path = $2 AND name = $3
		)
	`, ownerID, parentNamePath, name).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check name: %w", err)
	}
	return taken, nil
}

// InsertFolder inserts a folder row.
func (r *NodeRepo) InsertFolder(ctx context.Context, f *Folder) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO folders (id, owner_id, name, parent_id_path, parent_name_path, share_key_hash, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.OwnerID, f.Name, f.ParentIDPath, f.ParentNamePath, f.ShareKeyHash, f.Size, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert folder: %w", err)
	}
	return nil
}

// InsertFile inserts a file row.
func (r *NodeRepo) InsertFile(ctx context.Context, f *File) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO files (id, owner_id, name, parent_id_path, parent_name_path, shared, parts, size, encoded_size, encoding, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, f.ID, f.OwnerID, f.Name, f.ParentIDPath, f.ParentNamePath, f.Shared, f.Parts, f.Size, f.EncodedSize, f.Encoding, f.Type, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// RenameFile sets a file's name.
func (r *NodeRepo) RenameFile(ctx context.Context, ownerID, id, name string) error {
	return r.renameRow(ctx, "files", ownerID, id, name)
}

// RenameFolder sets a folder's own name. Descendant name paths are updated
// separately by CascadeRename.
func (r *NodeRepo) RenameFolder(ctx context.Context, ownerID, id, name string) error {
	return r.renameRow(ctx, "folders", ownerID, id, name)
}

func (r *NodeRepo) renameRow(ctx context.Context, table, ownerID, id, name string) error {
	tag, err := r.q.Exec(ctx,
		"UPDATE "+table+" SET name = $3 WHERE owner_id = $1 AND id = $2", ownerID, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CascadeRename rewrites one element of every descendant's parent_name_path:
// the element at the renamed folder's depth. depth is 0-based; the affected
// rows are exactly those carrying folderID at array position depth+1, and
// only the parallel name entry changes (ids are immutable).
func (r *NodeRepo) CascadeRename(ctx context.Context, ownerID, folderID string, depth int, newName string) error {
	for _, table := range []string{"files", "folders"} {
		_, err := r.q.Exec(ctx, `
			UPDATE `+table+` SET parent_name_path =
				parent_name_path[1:$3::int4] || $4::text ||
				parent_name_path[$3::int4 + 2 : cardinality(parent_name_path)]
			WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2
		`, ownerID, folderID, depth, newName)
		if err != nil {
			return fmt.Errorf("failed to cascade rename: %w", err)
		}
	}
	return nil
}

// SetFolderPaths rewrites a folder's own ancestor chain (used on move).
func (r *NodeRepo) SetFolderPaths(ctx context.Context, ownerID, id string, idPath, namePath []string) error {
	return r.setPaths(ctx, "folders", ownerID, id, idPath, namePath)
}

// SetFilePaths rewrites a file's own ancestor chain (used on move).
func (r *NodeRepo) SetFilePaths(ctx context.Context, ownerID, id string, idPath, namePath []string) error {
	return r.setPaths(ctx, "files", ownerID, id, idPath, namePath)
}

func (r *NodeRepo) setPaths(ctx context.Context, table, ownerID, id string, idPath, namePath []string) error {
	tag, err := r.q.Exec(ctx,
		"UPDATE "+table+" SET parent_id_path = $3, parent_name_path = $4 WHERE owner_id = $1 AND id = $2",
		ownerID, id, idPath, namePath)
	if err != nil {
		return fmt.Errorf("failed to set node paths: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CascadeMove replaces the ancestor-path prefix of every descendant of the
// moved folder. oldDepth is the folder's depth before the move; each
// descendant keeps its suffix below the folder (which still starts with the
// folder's own id at position oldDepth+1) and gains the destination's chain
// in front of it.
func (r *NodeRepo) CascadeMove(ctx context.Context, ownerID, folderID string, oldDepth int, newIDPath, newNamePath []string) error {
	for _, table := range []string{"files", "folders"} {
		_, err := r.q.Exec(ctx, `
			UPDATE `+table+` SET
				parent_id_path = $4::text[] || parent_id_path[$3::int4 + 1 : cardinality(parent_id_path)],
				parent_name_path = $5::text[] || parent_name_path[$3::int4 + 1 : cardinality(parent_name_path)]
			WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2
		`, ownerID, folderID, oldDepth, newIDPath, newNamePath)
		if err != nil {
			return fmt.Errorf("failed to cascade move: %w", err)
		}
	}
	return nil
}

// AddSizeToFolders adjusts the aggregated size of the given folders by delta.
// Callers pass a node's parent_id_path, i.e. exactly its ancestor chain.
func (r *NodeRepo) AddSizeToFolders(ctx context.Context, ownerID string, folderIDs []string, delta int64) error {
	if len(folderIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		UPDATE folders SET size = size + $3 WHERE owner_id = $1 AND id = ANY($2::text[])
	`, ownerID, folderIDs, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust folder sizes: %w", err)
	}
	return nil
}

// DeleteFileRow removes a single file row.
func (r *NodeRepo) DeleteFileRow(ctx context.Context, ownerID, id string) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM files WHERE owner_id = $1 AND id = $2", ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubtree removes a folder and every descendant row. depth is the
// folder's 0-based depth; descendants carry its id at position depth+1.
func (r *NodeRepo) DeleteSubtree(ctx context.Context, ownerID, folderID string, depth int) error {
	for _, table := range []string{"files", "folders"} {
		_, err := r.q.Exec(ctx,
			"DELETE FROM "+table+" WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2",
			ownerID, folderID, depth)
		if err != nil {
			return fmt.Errorf("failed to delete subtree: %w", err)
		}
	}

	tag, err := r.q.Exec(ctx, "DELETE FROM folders WHERE owner_id = $1 AND id = $2", ownerID, folderID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChildFolders returns the folders directly under the parent identified
// by its child id path (exact array match).
func (r *NodeRepo) ListChildFolders(ctx context.Context, ownerID string, parentIDPath []string) ([]*Folder, error) {
	rows, err := r.q.Query(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE owner_id = $1 AND parent_id_path = $2 ORDER BY name",
		ownerID, parentIDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return collectFolders(rows)
}

// ListChildFiles returns the files directly under the parent.
func (r *NodeRepo) ListChildFiles(ctx context.Context, ownerID string, parentIDPath []string) ([]*File, error) {
	rows, err := r.q.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = $1 AND parent_id_path = $2 ORDER BY name",
		ownerID, parentIDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return collectFiles(rows)
}

// SubtreeFolders returns every folder below the given folder, as a prefix
// scan over the path-indexed rows (no recursion).
func (r *NodeRepo) SubtreeFolders(ctx context.Context, ownerID, folderID string, depth int) ([]*Folder, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+folderColumns+` FROM folders
		WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2
		ORDER BY parent_name_path, name
	`, ownerID, folderID, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree folders: %w", err)
	}
	return collectFolders(rows)
}

// SubtreeFiles returns every file below the given folder.
func (r *NodeRepo) SubtreeFiles(ctx context.Context, ownerID, folderID string, depth int) ([]*File, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2
		ORDER BY parent_name_path, name
	`, ownerID, folderID, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree files: %w", err)
	}
	return collectFiles(rows)
}

// SetFolderShareKey sets or clears (nil) the folder's capability key hash.
func (r *NodeRepo) SetFolderShareKey(ctx context.Context, ownerID, id string, keyHash []byte) error {
	tag, err := r.q.Exec(ctx,
		"UPDATE folders SET share_key_hash = $3 WHERE owner_id = $1 AND id = $2", ownerID, id, keyHash)
	if err != nil {
		return fmt.Errorf("failed to set share key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubtreeShared flips the display flag on every file below the folder.
func (r *NodeRepo) SetSubtreeShared(ctx context.Context, ownerID, folderID string, depth int, shared bool) error {
	_, err := r.q.Exec(ctx, `
		UPDATE files SET shared = $4 WHERE owner_id = $1 AND parent_id_path[$3::int4 + 1] = $2
	`, ownerID, folderID, depth, shared)
	if err != nil {
		return fmt.Errorf("failed to flag subtree: %w", err)
	}
	return nil
}

// AllFileIDs returns the id and part count of every file the owner has,
// so callers can purge content after the rows cascade away.
func (r *NodeRepo) AllFileIDs(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := r.q.Query(ctx, "SELECT id, parts FROM files WHERE owner_id = $1", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var parts int
		if err := rows.Scan(&id, &parts); err != nil {
			return nil, fmt.Errorf("failed to scan file id: %w", err)
		}
		out[id] = parts
	}
	return out, rows.Err()
}

// RepairSizes recomputes every folder's aggregated size for the owner from
// scratch. Steady-state maintenance is incremental; this is the explicit
// consistency-check utility.
func (r *NodeRepo) RepairSizes(ctx context.Context, ownerID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE folders f SET size = COALESCE((
			SELECT SUM(fi.size) FROM files fi
			WHERE fi.owner_id = f.owner_id
			  AND fi.parent_id_path[cardinality(f.parent_id_path) + 1] = f.id
		), 0)
		WHERE f.owner_id = $1
	`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to repair sizes: %w", err)
	}
	return nil
}

func collectFolders(rows pgx.Rows) ([]*Folder, error) {
	defer rows.Close()
	var out []*Folder
	for rows.Next() {
		f := &Folder{}
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentIDPath, &f.ParentNamePath, &f.ShareKeyHash, &f.Size, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func collectFiles(rows pgx.Rows) ([]*File, error) {
	defer rows.Close()
	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentIDPath, &f.ParentNamePath, &f.Shared, &f.Parts, &f.Size, &f.EncodedSize, &f.Encoding, &f.Type, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
