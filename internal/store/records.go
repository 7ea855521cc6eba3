package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

// CommitPolicy decides whether a primary write and its snapshot share a transaction
type CommitPolicy string

const (
	// CommitAtomic writes record, snapshot and counter in one transaction
	CommitAtomic CommitPolicy = "atomic"
	// CommitPrimaryFirst commits the record write before versioning it; a
	// versioning failure leaves the primary write durable
	CommitPrimaryFirst CommitPolicy = "primary-first"
)

// ParseCommitPolicy parses a policy name, defaulting to atomic
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch CommitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CommitAtomic:
		return CommitAtomic, nil
	case CommitPrimaryFirst:
		return CommitPrimaryFirst, nil
	}
	return "", errclass.ErrConfiguration.WithMessagef("unknown commit policy %q", s)
}

// Repository is the record persistence layer. Every insert, update and bulk
// insert it performs calls the matching engine hook.
type Repository struct {
	store  *Store
	engine *core.Engine
	policy CommitPolicy
	logger *slog.Logger
}

// NewRepository creates a repository writing through st and versioning with engine
func NewRepository(st *Store, engine *core.Engine, policy CommitPolicy, logger *slog.Logger) *Repository {
	if policy == "" {
		policy = CommitAtomic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: st, engine: engine, policy: policy, logger: logger}
}

// Store returns the underlying store
func (r *Repository) Store() *Store {
	return r.store
}

// Selector returns the resolved selector of a record type
func (r *Repository) Selector(typeName string) (*core.Selector, error) {
	return r.engine.Registry().Selector(typeName)
}

// Provision creates or extends the tables of every registered record type
func (r *Repository) Provision(ctx context.Context) error {
	for _, rt := range r.engine.Registry().Types() {
		sel, err := r.Selector(rt.Name)
		if err != nil {
			return err
		}
		if err := r.store.Provision(ctx, sel); err != nil {
			return err
		}
		r.logger.Debug("provisioned record type", "record_type", rt.Name, "table", rt.Table, "history_table", rt.HistoryTable())
	}
	return nil
}

// Create inserts a new record and writes its version 1 snapshot
func (r *Repository) Create(ctx context.Context, typeName string, attrs models.Attributes) (*models.Record, error) {
	rec := &models.Record{Type: typeName, Attributes: attrs.Clone()}
	if err := r.Save(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Save inserts rec when it has no identity and updates it otherwise.
// Attributes missing from rec keep their stored values. On success rec
// reflects the stored row including its new latest_version.
func (r *Repository) Save(ctx context.Context, rec *models.Record) error {
	result, durable, err := r.save(ctx, rec)
	if durable {
		*rec = *result
	}
	return err
}

// Update applies changes to rec and saves it
func (r *Repository) Update(ctx context.Context, rec *models.Record, changes models.Attributes) error {
	if !rec.HasIdentity() {
		return errclass.ErrPrecursorMissing.WithMessagef("cannot update unsaved %s record", rec.Type)
	}
	work := *rec
	work.Attributes = rec.Attributes.Clone()
	if work.Attributes == nil {
		work.Attributes = make(models.Attributes, len(changes))
	}
	for k, v := range changes {
		work.Attributes[k] = v
	}
	result, durable, err := r.save(ctx, &work)
	if durable {
		*rec = *result
	}
	return err
}

func (r *Repository) save(ctx context.Context, rec *models.Record) (*models.Record, bool, error) {
	sel, err := r.Selector(rec.Type)
	if err != nil {
		return nil, false, err
	}
	if err := checkAttributes(sel.RecordType(), rec.Attributes); err != nil {
		return nil, false, errclass.ErrInvalidAttribute.WithMessage(err.Error())
	}
	if !rec.HasIdentity() {
		return r.insert(ctx, sel, rec)
	}
	return r.update(ctx, sel, rec)
}

func (r *Repository) insert(ctx context.Context, sel *core.Selector, rec *models.Record) (*models.Record, bool, error) {
	rt := sel.RecordType()
	var result models.Record

	primary := func(tx *Tx) error {
		result = *rec
		result.Attributes = rec.Attributes.Clone()
		result.LatestVersion = 0

		now := tx.now().UTC()
		id, err := insertRow(ctx, tx.tx, rt, result.Attributes, now)
		if err != nil {
			return err
		}
		result.ID = id
		result.CreatedAt = now
		result.UpdatedAt = now
		return nil
	}
	versioning := func(tx *Tx) error {
		_, err := r.engine.OnInserted(ctx, tx, &result)
		return err
	}

	durable, err := r.run(ctx, rt, primary, versioning)
	return &result, durable, err
}

func (r *Repository) update(ctx context.Context, sel *core.Selector, rec *models.Record) (*models.Record, bool, error) {
	rt := sel.RecordType()
	var (
		result   models.Record
		previous models.Attributes
	)

	primary := func(tx *Tx) error {
		current, err := loadRecord(ctx, tx.tx, rt, rec.ID)
		if err != nil {
			return err
		}
		previous = current.Attributes

		result = *current
		result.Attributes = current.Attributes.Clone()
		for k, v := range rec.Attributes {
			result.Attributes[k] = v
		}
		result.UpdatedAt = tx.now().UTC()
		return updateRow(ctx, tx.tx, rt, result.ID, result.Attributes, result.UpdatedAt)
	}
	versioning := func(tx *Tx) error {
		_, err := r.engine.OnUpdated(ctx, tx, &result, previous)
		return err
	}

	durable, err := r.run(ctx, rt, primary, versioning)
	return &result, durable, err
}

// BulkInsert inserts many records with one prepared statement and versions
// each of them explicitly, since no per-record hook fires for the batch
func (r *Repository) BulkInsert(ctx context.Context, typeName string, rows []models.Attributes) ([]*models.Record, error) {
	sel, err := r.Selector(typeName)
	if err != nil {
		return nil, err
	}
	rt := sel.RecordType()
	for i, attrs := range rows {
		if err := checkAttributes(rt, attrs); err != nil {
			return nil, errclass.ErrInvalidAttribute.WithMessagef("row %d: %v", i, err)
		}
	}

	var recs []*models.Record
	primary := func(tx *Tx) error {
		recs = make([]*models.Record, 0, len(rows))
		now := tx.now().UTC()

		stmt, err := tx.tx.PrepareContext(ctx, insertQuery(rt))
		if err != nil {
			return errclass.ErrStorage.WithMessagef("prepare %s bulk insert", rt.Name).Wrap(err)
		}
		defer stmt.Close()

		for _, attrs := range rows {
			res, err := stmt.ExecContext(ctx, insertArgs(rt, attrs, now)...)
			if err != nil {
				return errclass.ErrStorage.WithMessagef("bulk insert %s", rt.Name).Wrap(err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return errclass.ErrStorage.WithMessagef("bulk insert %s", rt.Name).Wrap(err)
			}
			recs = append(recs, &models.Record{
				Type:       rt.Name,
				ID:         id,
				Attributes: attrs.Clone(),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		return nil
	}
	versioning := func(tx *Tx) error {
		for _, rec := range recs {
			rec.LatestVersion = 0
		}
		_, err := r.engine.OnBulkInserted(ctx, tx, recs)
		return err
	}

	durable, err := r.run(ctx, rt, primary, versioning)
	if err != nil {
		if durable {
			return recs, err
		}
		return nil, err
	}
	return recs, nil
}

// run executes the primary write and its versioning according to the commit
// policy. durable reports whether the primary write committed.
func (r *Repository) run(ctx context.Context, rt *models.RecordType, primary, versioning func(tx *Tx) error) (durable bool, err error) {
	if r.policy == CommitPrimaryFirst {
		if err := r.store.WithTx(ctx, primary); err != nil {
			return false, err
		}
		if err := r.store.WithTx(ctx, versioning); err != nil {
			r.logger.Warn("primary write committed without snapshot",
				"record_type", rt.Name, "code", errclass.Code(err), "error", err)
			return true, err
		}
		return true, nil
	}

	err = r.store.WithTx(ctx, func(tx *Tx) error {
		if err := primary(tx); err != nil {
			return err
		}
		return versioning(tx)
	})
	return err == nil, err
}

// Get loads one record
func (r *Repository) Get(ctx context.Context, typeName string, id int64) (*models.Record, error) {
	sel, err := r.Selector(typeName)
	if err != nil {
		return nil, err
	}
	return loadRecord(ctx, r.store.db, sel.RecordType(), id)
}

// ListRecords returns every record of a type ordered by id
func (r *Repository) ListRecords(ctx context.Context, rt *models.RecordType) ([]*models.Record, error) {
	return queryRecords(ctx, r.store.db, rt, "1 = 1 ORDER BY id ASC")
}

// History returns the snapshots of a record, oldest first
func (r *Repository) History(ctx context.Context, typeName string, id int64) ([]*models.Snapshot, error) {
	sel, err := r.Selector(typeName)
	if err != nil {
		return nil, err
	}
	return r.store.ListVersions(ctx, sel, id)
}

// Version returns one snapshot of a record
func (r *Repository) Version(ctx context.Context, typeName string, id int64, version int) (*models.Snapshot, error) {
	sel, err := r.Selector(typeName)
	if err != nil {
		return nil, err
	}
	return r.store.GetVersion(ctx, sel, id, version)
}

// Check runs the consistency check for one type, or every type when typeName is empty
func (r *Repository) Check(ctx context.Context, typeName string) ([]core.Finding, error) {
	checker := core.NewChecker(r.engine.Registry(), r, r.store)
	if typeName == "" {
		return checker.CheckAll(ctx)
	}
	return checker.CheckType(ctx, typeName)
}

func insertQuery(rt *models.RecordType) string {
	cols := []string{models.ColumnLatestVersion, models.ColumnCreatedAt, models.ColumnUpdatedAt}
	for _, f := range rt.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(rt.Table), strings.Join(cols, ", "), placeholders(len(cols)))
}

func insertArgs(rt *models.RecordType, attrs models.Attributes, now time.Time) []any {
	args := []any{0, formatTime(now), formatTime(now)}
	for _, f := range rt.Fields {
		args = append(args, toSQL(attrs.Get(f.Name)))
	}
	return args
}

func insertRow(ctx context.Context, q querier, rt *models.RecordType, attrs models.Attributes, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, insertQuery(rt), insertArgs(rt, attrs, now)...)
	if err != nil {
		return 0, errclass.ErrStorage.WithMessagef("insert %s", rt.Name).Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errclass.ErrStorage.WithMessagef("insert %s", rt.Name).Wrap(err)
	}
	return id, nil
}

func updateRow(ctx context.Context, q querier, rt *models.RecordType, id int64, attrs models.Attributes, now time.Time) error {
	sets := []string{models.ColumnUpdatedAt + " = ?"}
	args := []any{formatTime(now)}
	for _, f := range rt.Fields {
		sets = append(sets, quoteIdent(f.Name)+" = ?")
		args = append(args, toSQL(attrs.Get(f.Name)))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(rt.Table), strings.Join(sets, ", "))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return errclass.ErrStorage.WithMessagef("update %s/%d", rt.Name, id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errclass.ErrStorage.WithMessagef("update %s/%d", rt.Name, id).Wrap(err)
	}
	if n == 0 {
		return errclass.ErrRecordNotFound.WithMessagef("%s/%d", rt.Name, id)
	}
	return nil
}

func loadRecord(ctx context.Context, q querier, rt *models.RecordType, id int64) (*models.Record, error) {
	recs, err := queryRecords(ctx, q, rt, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errclass.ErrRecordNotFound.WithMessagef("%s/%d", rt.Name, id)
	}
	return recs[0], nil
}

func queryRecords(ctx context.Context, q querier, rt *models.RecordType, where string, args ...any) ([]*models.Record, error) {
	cols := []string{models.ColumnID, models.ColumnLatestVersion, models.ColumnCreatedAt, models.ColumnUpdatedAt}
	for _, f := range rt.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), quoteIdent(rt.Table), where)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errclass.ErrStorage.WithMessagef("query %s", rt.Name).Wrap(err)
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		rec := &models.Record{Type: rt.Name, Attributes: make(models.Attributes, len(rt.Fields))}
		var createdAt, updatedAt sql.NullString

		dest := []any{&rec.ID, &rec.LatestVersion, &createdAt, &updatedAt}
		decoders := make([]func() models.Value, len(rt.Fields))
		for i, f := range rt.Fields {
			target, decode := scanTarget(f.Kind)
			dest = append(dest, target)
			decoders[i] = decode
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errclass.ErrStorage.WithMessagef("scan %s", rt.Name).Wrap(err)
		}
		rec.CreatedAt = parseTimestamp(createdAt.String)
		rec.UpdatedAt = parseTimestamp(updatedAt.String)
		for i, f := range rt.Fields {
			rec.Attributes[f.Name] = decoders[i]()
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errclass.ErrStorage.WithMessagef("query %s", rt.Name).Wrap(err)
	}
	return recs, nil
}
