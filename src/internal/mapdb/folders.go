package mapdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
)

const selectFolder = `SELECT id, display_name, parent_id, user_id, public, created_at FROM folders`

// GetFolder returns the folder with the given id.
func GetFolder(ctx context.Context, q sqlx.QueryerContext, id FolderID) (*Folder, error) {
	f := &Folder{}
	if err := sqlx.GetContext(ctx, q, f, selectFolder+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.EnsureStack(&FolderNotFoundError{ID: id})
		}
		return nil, errors.Wrapf(err, "get folder %d", id)
	}
	return f, nil
}

func folderByName(ctx context.Context, q sqlx.QueryerContext, name string, parent FolderID, owner UserID) (FolderID, bool, error) {
	var id FolderID
	if err := sqlx.GetContext(ctx, q, &id,
		`SELECT id FROM folders WHERE display_name = $1 AND parent_id = $2 AND user_id = $3`,
		name, parent, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "look up folder %q", name)
	}
	return id, true, nil
}

// CreateOrGetFolder returns the id of the owner's folder called name under parent, creating it
// with the given visibility if it does not exist.  Concurrent callers with the same arguments
// get the same id.
func CreateOrGetFolder(ctx context.Context, ext sqlx.ExtContext, name string, parent FolderID, owner UserID, public bool) (FolderID, error) {
	if name == "" {
		return 0, errors.New("folder name must not be empty")
	}
	if id, ok, err := folderByName(ctx, ext, name, parent, owner); err != nil || ok {
		return id, err
	}
	var id FolderID
	if err := sqlx.GetContext(ctx, ext, &id, `SELECT nextval('folders_id_seq')`); err != nil {
		return 0, errors.Wrap(err, "allocate folder id")
	}
	res, err := ext.ExecContext(ctx, `
		INSERT INTO folders (id, display_name, parent_id, user_id, public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (display_name, parent_id, user_id) DO NOTHING`,
		id, name, parent, owner, public, time.Now())
	if err != nil {
		return 0, errors.Wrapf(err, "create folder %q", name)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, errors.Wrap(err, "rows affected")
	} else if n == 1 {
		return id, nil
	}
	// Lost a race with another creator; theirs is the folder.
	winner, ok, err := folderByName(ctx, ext, name, parent, owner)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Errorf("folder %q conflicted on insert but cannot be found", name)
	}
	return winner, nil
}

// ListVisibleFolders returns the folders the requester can see, by display name.  Administrators
// see every folder; everyone else sees their own folders and public ones.  The root is never
// listed.
func ListVisibleFolders(ctx context.Context, q sqlx.QueryerContext, requester UserID, isAdmin bool) ([]*Folder, error) {
	var folders []*Folder
	var err error
	if isAdmin {
		err = sqlx.SelectContext(ctx, q, &folders,
			selectFolder+` WHERE id <> 0 ORDER BY display_name ASC, id ASC`)
	} else {
		err = sqlx.SelectContext(ctx, q, &folders,
			selectFolder+` WHERE id <> 0 AND (user_id = $1 OR public) ORDER BY display_name ASC, id ASC`, requester)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list folders visible to user %d", requester)
	}
	return folders, nil
}

// ChildFolders returns the ids of the folder's direct children.
func ChildFolders(ctx context.Context, q sqlx.QueryerContext, id FolderID) ([]FolderID, error) {
	var ids []FolderID
	if err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT id FROM folders WHERE parent_id = $1 AND id <> $1 ORDER BY id`, id); err != nil {
		return nil, errors.Wrapf(err, "list children of folder %d", id)
	}
	return ids, nil
}

// isAncestorOrSelf reports whether candidate is folder or one of its ancestors.
func isAncestorOrSelf(ctx context.Context, q sqlx.QueryerContext, folder, candidate FolderID) (bool, error) {
	var found bool
	if err := sqlx.GetContext(ctx, q, &found, `
		WITH RECURSIVE ancestors (id, parent_id) AS (
			SELECT id, parent_id FROM folders WHERE id = $1
			UNION
			SELECT f.id, f.parent_id FROM folders f JOIN ancestors a ON f.id = a.parent_id WHERE a.id <> 0
		)
		SELECT EXISTS (SELECT 1 FROM ancestors WHERE id = $2)`, folder, candidate); err != nil {
		return false, errors.Wrapf(err, "walk ancestors of folder %d", folder)
	}
	return found, nil
}

// ReparentFolder moves folder under newParent.  Moving to the root keeps the folder's public
// flag; moving anywhere else replaces it with the new parent's.  Moves that would put a folder
// inside itself fail with *FolderCycleError.
func ReparentFolder(ctx context.Context, ext sqlx.ExtContext, folder, newParent FolderID) error {
	if folder == RootFolder {
		return errors.New("the root folder cannot be moved")
	}
	if _, err := GetFolder(ctx, ext, folder); err != nil {
		return err
	}
	if newParent == RootFolder {
		if _, err := ext.ExecContext(ctx,
			`UPDATE folders SET parent_id = $1 WHERE id = $2`, newParent, folder); err != nil {
			return errors.Wrapf(err, "move folder %d to root", folder)
		}
		return nil
	}
	parent, err := GetFolder(ctx, ext, newParent)
	if err != nil {
		return err
	}
	cycle, err := isAncestorOrSelf(ctx, ext, newParent, folder)
	if err != nil {
		return err
	}
	if cycle {
		return errors.EnsureStack(&FolderCycleError{Folder: folder, NewParent: newParent})
	}
	if _, err := ext.ExecContext(ctx,
		`UPDATE folders SET parent_id = $1, public = $2 WHERE id = $3`, newParent, parent.Public, folder); err != nil {
		return errors.Wrapf(err, "move folder %d under %d", folder, newParent)
	}
	return nil
}

// PruneEmptyFolders deletes folders that hold no datasets and no other folders, repeating until
// a pass deletes nothing, and returns how many it deleted.
func PruneEmptyFolders(ctx context.Context, ext sqlx.ExtContext) (int64, error) {
	var total int64
	for {
		res, err := ext.ExecContext(ctx, `
			DELETE FROM folders f
			WHERE f.id <> 0
			AND NOT EXISTS (SELECT NULL FROM folder_map_mappings fmm WHERE fmm.folder_id = f.id)
			AND NOT EXISTS (SELECT NULL FROM folders f2 WHERE f2.parent_id = f.id AND f2.id <> f.id)`)
		if err != nil {
			return total, errors.Wrap(err, "delete empty folders")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, errors.Wrap(err, "rows affected")
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

// UpdateFolderMapping files the dataset in folder, moving it if it is already filed elsewhere.
func UpdateFolderMapping(ctx context.Context, ext sqlx.ExtContext, mapID MapID, folder FolderID) error {
	if _, err := ext.ExecContext(ctx, `
		INSERT INTO folder_map_mappings (map_id, folder_id) VALUES ($1, $2)
		ON CONFLICT (map_id) DO UPDATE SET folder_id = EXCLUDED.folder_id`, mapID, folder); err != nil {
		return errors.Wrapf(err, "file map %d in folder %d", mapID, folder)
	}
	return nil
}

// DeleteFolderMapping removes the dataset from whatever folder holds it.
func DeleteFolderMapping(ctx context.Context, ext sqlx.ExtContext, mapID MapID) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM folder_map_mappings WHERE map_id = $1`, mapID); err != nil {
		return errors.Wrapf(err, "unfile map %d", mapID)
	}
	return nil
}

// ListVisibleMaps returns the datasets the requester can see, by display name.  Administrators
// see every dataset.  Everyone else sees datasets they own, datasets not in a folder or in the
// root, and datasets in public folders.
func ListVisibleMaps(ctx context.Context, q sqlx.QueryerContext, requester UserID, isAdmin bool) ([]*VisibleMap, error) {
	query := `
		SELECT m.id, m.display_name, m.user_id, m.created_at, m.tags, f.id AS folder_id, f.public AS folder_public
		FROM maps m
		LEFT JOIN folder_map_mappings fmm ON fmm.map_id = m.id
		LEFT JOIN folders f ON f.id = fmm.folder_id`
	args := []interface{}{}
	if !isAdmin {
		query += ` WHERE m.user_id = $1 OR fmm.id IS NULL OR fmm.folder_id = 0 OR f.public`
		args = append(args, requester)
	}
	query += ` ORDER BY m.display_name ASC, m.id ASC`
	var maps []*VisibleMap
	if err := sqlx.SelectContext(ctx, q, &maps, query, args...); err != nil {
		return nil, errors.Wrapf(err, "list maps visible to user %d", requester)
	}
	return maps, nil
}
