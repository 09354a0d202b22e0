package service

import (
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"

	"cumulus/internal/server/database"
	"cumulus/internal/server/storage"
)

// ShareService grants and resolves read-only access to folder subtrees via
// capability keys. Possession of the key is the whole credential; no
// account is needed on the reading side. Only the key's hash is stored, so
// a database leak does not leak access.
type ShareService struct {
	db    *database.DB
	store storage.Store
}

func NewShareService(db *database.DB, store storage.Store) *ShareService {
	return &ShareService{db: db, store: store}
}

// ShareView is what a share key resolves to: the shared folder and its
// whole subtree, with paths intact but no owner identity.
type ShareView struct {
	Folder Node   `json:"folder"`
	Nodes  []Node `json:"nodes"`
}

// Share marks a folder shared and returns the plaintext capability key.
// Sharing an already shared folder rotates the key, cutting off holders of
// the old one.
func (s *ShareService) Share(ctx context.Context, ownerID, folderID string) (string, error) {
	key, keyHash, err := generateToken()
	if err != nil {
		return "", err
	}

	err = s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		folder, err := nodes.GetFolder(ctx, ownerID, folderID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := nodes.SetFolderShareKey(ctx, ownerID, folderID, keyHash); err != nil {
			return err
		}
		return nodes.SetSubtreeShared(ctx, ownerID, folderID, folder.Depth(), true)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Unshare revokes a folder's capability key. Existing key holders lose
// access immediately.
func (s *ShareService) Unshare(ctx context.Context, ownerID, folderID string) error {
	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		nodes := database.NewNodeRepo(tx)
		folder, err := nodes.GetFolder(ctx, ownerID, folderID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := nodes.SetFolderShareKey(ctx, ownerID, folderID, nil); err != nil {
			return err
		}
		return nodes.SetSubtreeShared(ctx, ownerID, folderID, folder.Depth(), false)
	})
}

// Resolve turns a capability key into a view of the shared subtree. An
// unknown key is indistinguishable from a revoked one.
func (s *ShareService) Resolve(ctx context.Context, key string) (*ShareView, error) {
	folder, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	nodes := database.NewNodeRepo(s.db.Pool)
	folders, err := nodes.SubtreeFolders(ctx, folder.OwnerID, folder.ID, folder.Depth())
	if err != nil {
		return nil, err
	}
	files, err := nodes.SubtreeFiles(ctx, folder.OwnerID, folder.ID, folder.Depth())
	if err != nil {
		return nil, err
	}

	return &ShareView{
		Folder: folderNode(folder),
		Nodes:  nodeViews(folders, files),
	}, nil
}

// OpenSharedFile opens a file's content through a capability key. The file
// must sit inside the shared subtree; anything else looks like an invalid
// key, never like a distinct "exists but not yours" case.
func (s *ShareService) OpenSharedFile(ctx context.Context, key, fileID string) (*database.File, io.ReadCloser, error) {
	folder, err := s.lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	file, err := database.NewNodeRepo(s.db.Pool).GetFile(ctx, folder.OwnerID, fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrInvalidShareKey
		}
		return nil, nil, err
	}
	if len(file.ParentIDPath) <= folder.Depth() || file.ParentIDPath[folder.Depth()] != folder.ID {
		return nil, nil, ErrInvalidShareKey
	}

	rc, err := openContent(ctx, s.store, file)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

func (s *ShareService) lookup(ctx context.Context, key string) (*database.Folder, error) {
	folder, err := database.NewNodeRepo(s.db.Pool).GetFolderByShareKeyHash(ctx, hashToken(key))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidShareKey
		}
		return nil, err
	}
	return folder, nil
}
