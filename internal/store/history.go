package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

// appendSnapshot inserts one history row
func appendSnapshot(ctx context.Context, q querier, sel *core.Selector, snap *models.Snapshot) error {
	rt := sel.RecordType()
	fields := sel.Fields()

	cols := []string{models.ColumnRefID, models.ColumnVersion, models.ColumnCreatedAt}
	args := []any{snap.RefID, snap.Version, formatTime(snap.CreatedAt)}
	for _, name := range fields {
		cols = append(cols, quoteIdent(name))
		args = append(args, toSQL(snap.Fields.Get(name)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(rt.HistoryTable()), strings.Join(cols, ", "), placeholders(len(cols)))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errclass.ErrDuplicateVersion.WithMessagef("%s/%d version %d", rt.Name, snap.RefID, snap.Version).Wrap(err)
		}
		return errclass.ErrStorage.WithMessagef("append %s/%d version %d", rt.Name, snap.RefID, snap.Version).Wrap(err)
	}
	return nil
}

// listVersions returns a record's snapshots in ascending version order
func listVersions(ctx context.Context, q querier, sel *core.Selector, refID int64) ([]*models.Snapshot, error) {
	return querySnapshots(ctx, q, sel, "ref_id = ? ORDER BY version ASC", refID)
}

// getVersion returns one snapshot, or ErrRecordNotFound
func getVersion(ctx context.Context, q querier, sel *core.Selector, refID int64, version int) (*models.Snapshot, error) {
	snaps, err := querySnapshots(ctx, q, sel, "ref_id = ? AND version = ?", refID, version)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, errclass.ErrRecordNotFound.WithMessagef("%s/%d has no version %d", sel.RecordType().Name, refID, version)
	}
	return snaps[0], nil
}

// countVersions counts history rows; used for reporting, never for allocation
func countVersions(ctx context.Context, q querier, sel *core.Selector, refID int64) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE ref_id = ?", quoteIdent(sel.RecordType().HistoryTable()))
	if err := q.QueryRowContext(ctx, query, refID).Scan(&n); err != nil {
		return 0, errclass.ErrStorage.WithMessage("count versions").Wrap(err)
	}
	return n, nil
}

func querySnapshots(ctx context.Context, q querier, sel *core.Selector, where string, args ...any) ([]*models.Snapshot, error) {
	rt := sel.RecordType()
	fields := sel.Fields()

	cols := []string{models.ColumnRefID, models.ColumnVersion, models.ColumnCreatedAt}
	for _, name := range fields {
		cols = append(cols, quoteIdent(name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(cols, ", "), quoteIdent(rt.HistoryTable()), where)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errclass.ErrStorage.WithMessagef("list %s versions", rt.Name).Wrap(err)
	}
	defer rows.Close()

	var snaps []*models.Snapshot
	for rows.Next() {
		snap := &models.Snapshot{RecordType: rt.Name, Fields: make(models.Attributes, len(fields))}
		var createdAt string

		dest := []any{&snap.RefID, &snap.Version, &createdAt}
		decoders := make([]func() models.Value, len(fields))
		for i, name := range fields {
			f, _ := rt.Field(name)
			target, decode := scanTarget(f.Kind)
			dest = append(dest, target)
			decoders[i] = decode
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errclass.ErrStorage.WithMessagef("scan %s version", rt.Name).Wrap(err)
		}
		snap.CreatedAt = parseTimestamp(createdAt)
		for i, name := range fields {
			snap.Fields[name] = decoders[i]()
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errclass.ErrStorage.WithMessagef("list %s versions", rt.Name).Wrap(err)
	}
	return snaps, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// latestVersion reads the counter of one record
func latestVersion(ctx context.Context, q querier, rt *models.RecordType, id int64) (int, error) {
	var v int
	query := fmt.Sprintf("SELECT latest_version FROM %s WHERE id = ?", quoteIdent(rt.Table))
	err := q.QueryRowContext(ctx, query, id).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, errclass.ErrRecordNotFound.WithMessagef("%s/%d", rt.Name, id)
	}
	if err != nil {
		return 0, errclass.ErrStorage.WithMessage("read latest_version").Wrap(err)
	}
	return v, nil
}

// advanceLatestVersion moves the counter with a compare-and-set
func advanceLatestVersion(ctx context.Context, q querier, rt *models.RecordType, id int64, from, to int) error {
	query := fmt.Sprintf("UPDATE %s SET latest_version = ? WHERE id = ? AND latest_version = ?", quoteIdent(rt.Table))
	res, err := q.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return errclass.ErrStorage.WithMessage("advance latest_version").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errclass.ErrStorage.WithMessage("advance latest_version").Wrap(err)
	}
	if n == 1 {
		return nil
	}

	current, err := latestVersion(ctx, q, rt, id)
	if err != nil {
		return err
	}
	return errclass.ErrDuplicateVersion.WithMessagef("%s/%d latest_version is %d, expected %d", rt.Name, id, current, from)
}

// ListVersions returns a record's snapshots, oldest first
func (s *Store) ListVersions(ctx context.Context, sel *core.Selector, refID int64) ([]*models.Snapshot, error) {
	return listVersions(ctx, s.db, sel, refID)
}

// GetVersion returns one snapshot of a record
func (s *Store) GetVersion(ctx context.Context, sel *core.Selector, refID int64, version int) (*models.Snapshot, error) {
	return getVersion(ctx, s.db, sel, refID, version)
}

// CountVersions returns the number of snapshots stored for a record
func (s *Store) CountVersions(ctx context.Context, sel *core.Selector, refID int64) (int, error) {
	return countVersions(ctx, s.db, sel, refID)
}

// AppendSnapshot appends a snapshot in its own transaction
func (s *Store) AppendSnapshot(ctx context.Context, sel *core.Selector, snap *models.Snapshot) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.AppendSnapshot(ctx, sel, snap)
	})
}
