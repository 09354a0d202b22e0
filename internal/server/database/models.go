package database

import "time"

// User represents an account row. TOTPSecret is nil unless a second factor
// is enrolled.
type User struct {
	ID           string
	Email        string
	Name         string
	Birthdate    *time.Time
	PasswordHash string
	TOTPSecret   *string
	CreatedAt    time.Time
}

// UnverifiedEmail is a pending email claim. Unclaimed rows (UserID nil)
// carry the full pending signup profile; claimed rows belong to an existing
// user changing their address.
type UnverifiedEmail struct {
	TokenHash    []byte
	Email        string
	UserID       *string
	Name         *string
	Birthdate    *time.Time
	PasswordHash *string
	CreatedAt    time.Time
}

// PasswordReset is a single-use reset token; at most one live row per user.
type PasswordReset struct {
	TokenHash []byte
	UserID    string
	CreatedAt time.Time
}

// Session is a sign-in session. Only the token's hash is ever stored.
type Session struct {
	TokenHash  []byte
	UserID     string
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Folder is a hierarchy node that can contain other nodes. ParentIDPath and
// ParentNamePath are the materialized ancestor chain, root to immediate
// parent, and always have equal length. Size aggregates every file in the
// subtree. ShareKeyHash is set iff the folder is shared.
type Folder struct {
	ID             string
	OwnerID        string
	Name           string
	ParentIDPath   []string
	ParentNamePath []string
	ShareKeyHash   []byte
	Size           int64
	CreatedAt      time.Time
}

// File is a leaf hierarchy node backed by content parts in the content store.
type File struct {
	ID             string
	OwnerID        string
	Name           string
	ParentIDPath   []string
	ParentNamePath []string
	Shared         bool
	Parts          int
	Size           int64
	EncodedSize    int64
	Encoding       *string
	Type           string
	CreatedAt      time.Time
}

// Depth returns the folder's depth in the tree (0 for top-level folders).
func (f *Folder) Depth() int {
	return len(f.ParentIDPath)
}

// ChildIDPath returns the parent_id_path a direct child of the folder carries.
func (f *Folder) ChildIDPath() []string {
	return appendPath(f.ParentIDPath, f.ID)
}

// ChildNamePath returns the parent_name_path a direct child of the folder carries.
func (f *Folder) ChildNamePath() []string {
	return appendPath(f.ParentNamePath, f.Name)
}

func appendPath(path []string, elem string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, elem)
}
