package service

import "errors"

// Sentinel errors for the service layer. Authentication and token failures
// are deliberately coarse: callers learn that a credential was wrong, never
// which part of it.
var (
	ErrNotFound           = errors.New("node not found")
	ErrInvalidName        = errors.New("invalid node name")
	ErrParentNotFound     = errors.New("parent folder not found")
	ErrNameConflict       = errors.New("a node with that name already exists in the folder")
	ErrCyclicMove         = errors.New("cannot move a folder into its own subtree")
	ErrConflict           = errors.New("operation kept conflicting, try again")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidShareKey    = errors.New("invalid share key")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
)
