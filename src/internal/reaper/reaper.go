// Package reaper tears down a dataset: the tables and sequences generated for it, then its
// catalog row and folder association.
package reaper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	droppedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "reaper",
		Name:      "objects_dropped_total",
		Help:      "Generated dataset objects dropped, by kind.",
	}, []string{"kind"})
	failuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "reaper",
		Name:      "teardown_failures_total",
		Help:      "Dataset teardowns that stopped on an error.",
	})
)

// Kind is the kind of a generated object, as spelled in DDL.
type Kind string

const (
	KindTable    Kind = "TABLE"
	KindSequence Kind = "SEQUENCE"
)

// Object is a table or sequence generated for a dataset.
type Object struct {
	Kind Kind
	Name string
}

func (o Object) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.Name)
}

func (o Object) dropStatement() string {
	return "DROP " + string(o.Kind) + " IF EXISTS " + pq.QuoteIdentifier(o.Name)
}

// Dependent tables come first so that nothing references a table when it is dropped.
var (
	tableBases    = []string{"current_way_nodes", "current_relation_members", "current_nodes", "current_ways", "current_relations", "changesets"}
	sequenceBases = []string{"current_nodes", "current_ways", "current_relations", "changesets"}
)

// GeneratedObjects returns every object generated for the dataset, in drop order: the tables,
// then the sequences.
func GeneratedObjects(id mapdb.MapID) []Object {
	suffix := "_" + strconv.FormatInt(int64(id), 10)
	objs := make([]Object, 0, len(tableBases)+len(sequenceBases))
	for _, b := range tableBases {
		objs = append(objs, Object{Kind: KindTable, Name: b + suffix})
	}
	for _, b := range sequenceBases {
		objs = append(objs, Object{Kind: KindSequence, Name: b + suffix + "_id_seq"})
	}
	return objs
}

// Report describes one DropGeneratedObjects call.
type Report struct {
	MapID mapdb.MapID
	// Existed are the generated objects present before the call.
	Existed []Object
	// Dropped are the objects of Existed whose drop succeeded.
	Dropped []Object
}

// Complete reports whether every object that existed was dropped.
func (r *Report) Complete() bool {
	return len(r.Dropped) == len(r.Existed)
}

// TeardownError is returned when tearing down a dataset fails.  Object is nil when the failure was
// not specific to one object.
type TeardownError struct {
	MapID  mapdb.MapID
	Object *Object
	Err    error
}

func (err *TeardownError) Error() string {
	if err.Object != nil {
		return fmt.Sprintf("teardown of map %d: drop %v: %v", err.MapID, *err.Object, err.Err)
	}
	return fmt.Sprintf("teardown of map %d: %v", err.MapID, err.Err)
}

func (err *TeardownError) Unwrap() error {
	return err.Err
}

// Reaper drops generated objects and deletes datasets.
type Reaper struct {
	db *hootsql.DB
}

// New returns a Reaper operating on db.
func New(db *hootsql.DB) *Reaper {
	return &Reaper{db: db}
}

// Existing returns the dataset's generated objects that are present, in drop order.
func (r *Reaper) Existing(ctx context.Context, id mapdb.MapID) ([]Object, error) {
	return existing(ctx, r.db, id)
}

func existing(ctx context.Context, q sqlx.QueryerContext, id mapdb.MapID) ([]Object, error) {
	objs := GeneratedObjects(id)
	var tables, sequences []interface{}
	for _, o := range objs {
		if o.Kind == KindTable {
			tables = append(tables, o.Name)
		} else {
			sequences = append(sequences, o.Name)
		}
	}
	present := make(map[Object]bool)
	for _, c := range []struct {
		kind  Kind
		query string
		names []interface{}
	}{
		{KindTable, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_name IN (`, tables},
		{KindSequence, `SELECT sequence_name FROM information_schema.sequences WHERE sequence_schema = 'public' AND sequence_name IN (`, sequences},
	} {
		var names []string
		if err := sqlx.SelectContext(ctx, q, &names, c.query+hootsql.Placeholders(1, len(c.names))+`)`, c.names...); err != nil {
			return nil, errors.EnsureStack(&TeardownError{MapID: id, Err: errors.Wrapf(err, "list existing %s objects", c.kind)})
		}
		for _, n := range names {
			present[Object{Kind: c.kind, Name: n}] = true
		}
	}
	var result []Object
	for _, o := range objs {
		if present[o] {
			result = append(result, o)
		}
	}
	return result, nil
}

// CountResidualObjects returns how many of the dataset's generated objects are still present.
func (r *Reaper) CountResidualObjects(ctx context.Context, id mapdb.MapID) (int, error) {
	objs, err := r.Existing(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(objs), nil
}

// DropGeneratedObjects drops each of the dataset's generated objects with its own statement,
// outside any transaction.  It stops at the first failure, returning a *TeardownError along with
// the report so far.  Objects already absent are not an error, so the call can be repeated.
func (r *Reaper) DropGeneratedObjects(ctx context.Context, id mapdb.MapID) (_ *Report, retErr error) {
	ctx, end := log.SpanContext(ctx, "dropGeneratedObjects", log.MapID(int64(id)))
	defer end(log.Errorp(&retErr))
	report := &Report{MapID: id}
	var err error
	if report.Existed, err = r.Existing(ctx, id); err != nil {
		failuresMetric.Inc()
		return report, err
	}
	existed := make(map[Object]bool, len(report.Existed))
	for _, o := range report.Existed {
		existed[o] = true
	}
	for _, o := range GeneratedObjects(id) {
		o := o
		if _, err := r.db.ExecContext(ctx, o.dropStatement()); err != nil {
			failuresMetric.Inc()
			return report, errors.EnsureStack(&TeardownError{MapID: id, Object: &o, Err: err})
		}
		if existed[o] {
			report.Dropped = append(report.Dropped, o)
			droppedMetric.WithLabelValues(string(o.Kind)).Inc()
		}
	}
	log.Debug(ctx, "dropped generated objects", zap.Int("existed", len(report.Existed)), zap.Int("dropped", len(report.Dropped)))
	return report, nil
}

// DeleteDataset deletes the dataset's catalog row and folder association in one transaction.
func (r *Reaper) DeleteDataset(ctx context.Context, id mapdb.MapID) error {
	if err := dbutil.WithTx(ctx, r.db, func(ctx context.Context, tx *hootsql.Tx) error {
		return mapdb.DeleteMap(ctx, tx, id)
	}); err != nil {
		failuresMetric.Inc()
		return errors.EnsureStack(&TeardownError{MapID: id, Err: err})
	}
	return nil
}

// Teardown drops the dataset's generated objects and then deletes the dataset.  If a drop fails
// the catalog row is kept, so the teardown can be retried.
func (r *Reaper) Teardown(ctx context.Context, id mapdb.MapID) (_ *Report, retErr error) {
	ctx, end := log.SpanContext(ctx, "teardown", log.MapID(int64(id)))
	defer end(log.Errorp(&retErr))
	report, err := r.DropGeneratedObjects(ctx, id)
	if err != nil {
		return report, err
	}
	if err := r.DeleteDataset(ctx, id); err != nil {
		return report, err
	}
	return report, nil
}
