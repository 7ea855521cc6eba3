package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/kilupskalvis/rvc/internal/models"
)

// Tx is one write transaction. It implements core.Tx so the engine's
// snapshot and counter writes share the scope of the primary record write.
type Tx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ core.Tx = (*Tx)(nil)

// AppendSnapshot inserts a history row
func (t *Tx) AppendSnapshot(ctx context.Context, sel *core.Selector, snap *models.Snapshot) error {
	return appendSnapshot(ctx, t.tx, sel, snap)
}

// ListVersions returns a record's snapshots as seen by this transaction
func (t *Tx) ListVersions(ctx context.Context, sel *core.Selector, refID int64) ([]*models.Snapshot, error) {
	return listVersions(ctx, t.tx, sel, refID)
}

// LatestVersion re-reads a record's counter from the database
func (t *Tx) LatestVersion(ctx context.Context, rt *models.RecordType, id int64) (int, error) {
	return latestVersion(ctx, t.tx, rt, id)
}

// AdvanceLatestVersion moves a record's counter from one value to the next
func (t *Tx) AdvanceLatestVersion(ctx context.Context, rt *models.RecordType, id int64, from, to int) error {
	return advanceLatestVersion(ctx, t.tx, rt, id, from, to)
}
