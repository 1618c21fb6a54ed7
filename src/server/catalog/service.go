// Package catalog serves the dataset catalog: the folder tree that scopes which datasets a user
// can see, stale dataset reports, and dataset teardown.
package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/hootenanny/jobtrack/src/internal/reaper"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Env is the dependencies of a Service.
type Env struct {
	DB *hootsql.DB
}

// Service is the dataset catalog.
type Service struct {
	env    Env
	reaper *reaper.Reaper
}

// NewService returns a Service.
func NewService(env Env) *Service {
	return &Service{env: env, reaper: reaper.New(env.DB)}
}

func isAdmin(ctx context.Context, q sqlx.QueryerContext, requester mapdb.UserID) (bool, error) {
	admin, err := mapdb.IsAdmin(ctx, q, requester)
	if err != nil {
		return false, errors.Wrapf(err, "resolve privileges of user %d", requester)
	}
	return admin, nil
}

// ListFolders returns the folders visible to requester.
func (s *Service) ListFolders(ctx context.Context, requester mapdb.UserID) (folders []*mapdb.Folder, retErr error) {
	ctx, end := log.SpanContext(ctx, "listFolders", zap.Int64("requester", int64(requester)))
	defer end(log.Errorp(&retErr))
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		admin, err := isAdmin(ctx, tx, requester)
		if err != nil {
			return err
		}
		folders, err = mapdb.ListVisibleFolders(ctx, tx, requester, admin)
		return err
	}, dbutil.WithReadOnly())
	return folders, err
}

// ListMaps returns the datasets visible to requester, with the folder each is filed in.
func (s *Service) ListMaps(ctx context.Context, requester mapdb.UserID) (maps []*mapdb.VisibleMap, retErr error) {
	ctx, end := log.SpanContext(ctx, "listMaps", zap.Int64("requester", int64(requester)))
	defer end(log.Errorp(&retErr))
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		admin, err := isAdmin(ctx, tx, requester)
		if err != nil {
			return err
		}
		maps, err = mapdb.ListVisibleMaps(ctx, tx, requester, admin)
		return err
	}, dbutil.WithReadOnly())
	return maps, err
}

// CreateFolder returns the owner's folder called name under parent, creating it if needed.
func (s *Service) CreateFolder(ctx context.Context, name string, parent mapdb.FolderID, owner mapdb.UserID, public bool) (id mapdb.FolderID, retErr error) {
	ctx, end := log.SpanContext(ctx, "createFolder", zap.String("name", name), log.FolderID(int64(parent)))
	defer end(log.Errorp(&retErr), zap.Int64("created", int64(id)))
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		if parent != mapdb.RootFolder {
			if _, err := mapdb.GetFolder(ctx, tx, parent); err != nil {
				return err
			}
		}
		var err error
		id, err = mapdb.CreateOrGetFolder(ctx, tx, name, parent, owner, public)
		return err
	})
	return id, err
}

// MoveFolder moves folder under newParent.  The move is serializable so that two concurrent
// moves cannot together close a cycle.
func (s *Service) MoveFolder(ctx context.Context, folder, newParent mapdb.FolderID) (retErr error) {
	ctx, end := log.SpanContext(ctx, "moveFolder", log.FolderID(int64(folder)), zap.Int64("newParent", int64(newParent)))
	defer end(log.Errorp(&retErr))
	return dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		return mapdb.ReparentFolder(ctx, tx, folder, newParent)
	}, dbutil.WithIsolationLevel(sql.LevelSerializable))
}

// FileMap files the dataset in folder.
func (s *Service) FileMap(ctx context.Context, id mapdb.MapID, folder mapdb.FolderID) (retErr error) {
	ctx, end := log.SpanContext(ctx, "fileMap", log.MapID(int64(id)), log.FolderID(int64(folder)))
	defer end(log.Errorp(&retErr))
	return dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		if _, err := mapdb.GetMap(ctx, tx, id); err != nil {
			return err
		}
		if folder != mapdb.RootFolder {
			if _, err := mapdb.GetFolder(ctx, tx, folder); err != nil {
				return err
			}
		}
		return mapdb.UpdateFolderMapping(ctx, tx, id, folder)
	})
}

// PruneFolders deletes empty folders and returns how many it deleted.
func (s *Service) PruneFolders(ctx context.Context) (n int64, retErr error) {
	ctx, end := log.SpanContext(ctx, "pruneFolders")
	defer end(log.Errorp(&retErr), zap.Int64("deleted", n))
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		var err error
		n, err = mapdb.PruneEmptyFolders(ctx, tx)
		return err
	})
	return n, err
}

// ResolveMap resolves a dataset reference, either a numeric id or the display name of one of
// owner's datasets.
func (s *Service) ResolveMap(ctx context.Context, ref string, owner mapdb.UserID) (mapdb.MapID, error) {
	return mapdb.MapIDFromRef(ctx, s.env.DB, ref, owner)
}

// StaleMaps returns the datasets not accessed since threshold.
func (s *Service) StaleMaps(ctx context.Context, threshold time.Time) (maps []*mapdb.Map, _ error) {
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		var err error
		maps, err = mapdb.FindStaleMaps(ctx, tx, threshold)
		return err
	}, dbutil.WithReadOnly())
	return maps, err
}

// StaleMapsSummary counts the datasets not accessed since threshold, per owner.
func (s *Service) StaleMapsSummary(ctx context.Context, threshold time.Time) (summary map[string]int64, _ error) {
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		var err error
		summary, err = mapdb.StaleMapsSummary(ctx, tx, threshold)
		return err
	}, dbutil.WithReadOnly())
	return summary, err
}

// MapInfo is what the dataset's tags say about it.
type MapInfo struct {
	Map *mapdb.Map
	// Bounds is the dataset's bounds tag, or its bbox tag when bounds is unset.
	Bounds         string
	GrailEligible  bool
	ConflationType string
}

// MapInfo reads the dataset and interprets its tags, in one read-only transaction.
func (s *Service) MapInfo(ctx context.Context, id mapdb.MapID) (info *MapInfo, retErr error) {
	ctx, end := log.SpanContext(ctx, "mapInfo", log.MapID(int64(id)))
	defer end(log.Errorp(&retErr))
	info = &MapInfo{}
	err := dbutil.WithTx(ctx, s.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		var err error
		if info.Map, err = mapdb.GetMap(ctx, tx, id); err != nil {
			return err
		}
		if info.Bounds, err = mapdb.MapBounds(ctx, tx, id); err != nil {
			return err
		}
		if info.GrailEligible, err = mapdb.GrailEligible(ctx, tx, id); err != nil {
			return err
		}
		info.ConflationType, err = mapdb.ConflationType(ctx, tx, id)
		return err
	}, dbutil.WithReadOnly())
	if err != nil {
		return nil, err
	}
	return info, nil
}

// TeardownMap drops the dataset's generated tables and sequences and then deletes it.
func (s *Service) TeardownMap(ctx context.Context, id mapdb.MapID) (*reaper.Report, error) {
	report, err := s.reaper.Teardown(ctx, id)
	if err != nil {
		return report, err
	}
	log.Info(ctx, "tore down map", log.MapID(int64(id)), zap.Int("dropped", len(report.Dropped)))
	return report, nil
}

// DropMapObjects drops the dataset's generated tables and sequences, leaving its catalog row.
func (s *Service) DropMapObjects(ctx context.Context, id mapdb.MapID) (*reaper.Report, error) {
	return s.reaper.DropGeneratedObjects(ctx, id)
}

// ResidualObjects counts the dataset's generated objects that still exist.
func (s *Service) ResidualObjects(ctx context.Context, id mapdb.MapID) (int, error) {
	return s.reaper.CountResidualObjects(ctx, id)
}
