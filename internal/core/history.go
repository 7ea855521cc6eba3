package core

import (
	"context"

	"github.com/kilupskalvis/rvc/internal/models"
)

// HistoryStore is the append-only persistence boundary for snapshots. The
// selector tells the store which captured fields the rows carry.
// AppendSnapshot returns an errclass.ErrDuplicateVersion error when
// (ref_id, version) already exists.
type HistoryStore interface {
	AppendSnapshot(ctx context.Context, sel *Selector, snap *models.Snapshot) error
	ListVersions(ctx context.Context, sel *Selector, refID int64) ([]*models.Snapshot, error)
}

// CounterStore reads and advances the latest_version counter of a record.
// AdvanceLatestVersion is a compare-and-set: it fails with
// errclass.ErrDuplicateVersion when the stored counter is no longer from.
type CounterStore interface {
	LatestVersion(ctx context.Context, rt *models.RecordType, id int64) (int, error)
	AdvanceLatestVersion(ctx context.Context, rt *models.RecordType, id int64, from, to int) error
}

// Tx is the transactional scope shared by a primary record write and the
// snapshot it produces. Both commit or roll back together.
type Tx interface {
	HistoryStore
	CounterStore
}
