package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

// Allocation is the counter transition a snapshot write performs
type Allocation struct {
	From int
	To   int
}

// Allocator computes the next version ordinal from the record's stored
// latest_version counter. It never counts history rows.
type Allocator struct{}

// Next re-reads latest_version through the caller's transaction and returns
// the transition to latest_version + 1
func (Allocator) Next(ctx context.Context, counters CounterStore, rt *models.RecordType, id int64) (Allocation, error) {
	if id <= 0 {
		return Allocation{}, errclass.ErrPrecursorMissing.WithMessagef("%s record has no primary key", rt.Name)
	}
	current, err := counters.LatestVersion(ctx, rt, id)
	if err != nil {
		return Allocation{}, fmt.Errorf("read latest_version of %s/%d: %w", rt.Name, id, err)
	}
	if current < 0 {
		return Allocation{}, fmt.Errorf("negative latest_version %d on %s/%d", current, rt.Name, id)
	}
	return Allocation{From: current, To: current + 1}, nil
}
