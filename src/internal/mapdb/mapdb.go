// Package mapdb stores datasets ("maps"), the folder tree that scopes their visibility, and the
// users that own both.
package mapdb

import (
	"time"

	"github.com/hootenanny/jobtrack/src/internal/hootsql"
)

// MapID identifies a dataset.
type MapID int64

// FolderID identifies a folder.
type FolderID int64

// UserID identifies a user.
type UserID int64

// RootFolder is the implicit root of the folder tree.
const RootFolder FolderID = 0

// Tag keys with meaning to this package.
const (
	TagLastAccessed   = "lastAccessed"
	TagBounds         = "bounds"
	TagBBox           = "bbox"
	TagParams         = "params"
	TagGrailReference = "grailReference"
)

// Map is a row of maps.
type Map struct {
	ID          MapID        `db:"id"`
	DisplayName string       `db:"display_name"`
	UserID      UserID       `db:"user_id"`
	CreatedAt   time.Time    `db:"created_at"`
	Tags        hootsql.Tags `db:"tags"`
}

// Folder is a row of folders.
type Folder struct {
	ID          FolderID  `db:"id"`
	DisplayName string    `db:"display_name"`
	ParentID    FolderID  `db:"parent_id"`
	UserID      UserID    `db:"user_id"`
	Public      bool      `db:"public"`
	CreatedAt   time.Time `db:"created_at"`
}

// User is a row of users.
type User struct {
	ID          UserID       `db:"id"`
	DisplayName string       `db:"display_name"`
	Email       string       `db:"email"`
	Privileges  hootsql.Tags `db:"privileges"`
}

// IsAdmin reports whether the user holds the admin privilege.
func (u *User) IsAdmin() bool {
	return u != nil && u.Privileges["admin"] == "true"
}

// VisibleMap is a dataset together with the folder it is filed in, if any.
type VisibleMap struct {
	Map
	FolderID     *FolderID `db:"folder_id"`
	FolderPublic *bool     `db:"folder_public"`
}
