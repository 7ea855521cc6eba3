package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/metrics"
	"github.com/kilupskalvis/rvc/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_Next(t *testing.T) {
	ctx := context.Background()
	tx := NewMockTx()
	rt := userType()
	tx.AddRecord("users", 1, 0)
	tx.AddRecord("users", 2, 4)

	alloc, err := Allocator{}.Next(ctx, tx, rt, 1)
	require.NoError(t, err)
	assert.Equal(t, Allocation{From: 0, To: 1}, alloc)

	alloc, err = Allocator{}.Next(ctx, tx, rt, 2)
	require.NoError(t, err)
	assert.Equal(t, Allocation{From: 4, To: 5}, alloc)

	_, err = Allocator{}.Next(ctx, tx, rt, 0)
	assert.ErrorIs(t, err, errclass.ErrPrecursorMissing)

	_, err = Allocator{}.Next(ctx, tx, rt, 99)
	assert.ErrorIs(t, err, errclass.ErrRecordNotFound)
}

func TestEngine_OnInserted(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 0)
	rec := newUser(1, "a@x.com", "NYC")

	snap, err := e.OnInserted(ctx, tx, rec)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, int64(1), snap.RefID)
	assert.Equal(t, 1, rec.LatestVersion)
	assert.Equal(t, 1, tx.Counters["users/1"])
	require.Len(t, tx.Snapshots["users/1"], 1)
	assert.Equal(t, "a@x.com", tx.Snapshots["users/1"][0].Fields.Get("email").Str())
}

func TestEngine_OnUpdated_IncrementsVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 0)
	rec := newUser(1, "a@x.com", "NYC")

	_, err := e.OnInserted(ctx, tx, rec)
	require.NoError(t, err)

	previous := rec.Attributes.Clone()
	rec.Attributes["email"] = models.String("b@x.com")
	snap, err := e.OnUpdated(ctx, tx, rec, previous)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Version)
	assert.Equal(t, 2, rec.LatestVersion)

	versions, err := tx.ListVersions(ctx, mustSelector(t, userType()), 1)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "a@x.com", versions[0].Fields.Get("email").Str())
	assert.Equal(t, "b@x.com", versions[1].Fields.Get("email").Str())
	assert.Equal(t, "NYC", versions[1].Fields.Get("city").Str())
}

func TestEngine_OnUpdated_TrustsStoredCounter(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 3)
	for v := 1; v <= 3; v++ {
		require.NoError(t, tx.AppendSnapshot(ctx, mustSelector(t, userType()), &models.Snapshot{RefID: 1, Version: v}))
	}

	rec := newUser(1, "a@x.com", "NYC")
	rec.LatestVersion = 1 // stale in-memory value

	snap, err := e.OnUpdated(ctx, tx, rec, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Version)
	assert.Equal(t, 4, rec.LatestVersion)
}

func TestEngine_UnchangedVersionPolicyStillVersions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, commentType(models.UnchangedVersion))
	tx := NewMockTx()
	tx.AddRecord("comments", 1, 0)
	rec := &models.Record{Type: "comments", ID: 1, Attributes: models.Attributes{
		"title":   models.String("Lorem"),
		"content": models.String("first"),
	}}

	_, err := e.OnInserted(ctx, tx, rec)
	require.NoError(t, err)

	previous := rec.Attributes.Clone()
	rec.Attributes["title"] = models.String("Not lorem ipsum")
	snap, err := e.OnUpdated(ctx, tx, rec, previous)
	require.NoError(t, err)

	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Version)
	_, hasTitle := snap.Fields["title"]
	assert.False(t, hasTitle, "unselected fields never appear in snapshots")
}

func TestEngine_UnchangedSkipPolicySuppresses(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(commentType(models.UnchangedSkip))
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(reg, WithMetrics(m))

	tx := NewMockTx()
	tx.AddRecord("comments", 1, 0)
	rec := &models.Record{Type: "comments", ID: 1, Attributes: models.Attributes{
		"title":   models.String("Lorem"),
		"content": models.String("first"),
	}}
	_, err = e.OnInserted(ctx, tx, rec)
	require.NoError(t, err)

	previous := rec.Attributes.Clone()
	rec.Attributes["content"] = models.String("I approve of this comment.")
	snap, err := e.OnUpdated(ctx, tx, rec, previous)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Version)

	previous = rec.Attributes.Clone()
	rec.Attributes["title"] = models.String("Not lorem ipsum")
	snap, err = e.OnUpdated(ctx, tx, rec, previous)
	require.NoError(t, err)
	assert.Nil(t, snap)

	assert.Equal(t, 2, rec.LatestVersion)
	assert.Len(t, tx.Snapshots["comments/1"], 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuppressedTotal.WithLabelValues("comments")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("comments", "insert"))+
		testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("comments", "update")))
}

func TestEngine_SkipPolicyVersionsUntrackedRecord(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, commentType(models.UnchangedSkip))
	tx := NewMockTx()
	tx.AddRecord("comments", 1, 0)
	rec := &models.Record{Type: "comments", ID: 1, Attributes: models.Attributes{"content": models.String("x")}}

	snap, err := e.OnUpdated(ctx, tx, rec, rec.Attributes.Clone())
	require.NoError(t, err)
	require.NotNil(t, snap, "a record without history gets its first snapshot")
	assert.Equal(t, 1, snap.Version)
}

func TestEngine_OnBulkInserted(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()

	recs := []*models.Record{
		newUser(1, "a@x.com", "NYC"),
		newUser(2, "b@x.com", "LA"),
		newUser(3, "c@x.com", "SF"),
	}
	for _, r := range recs {
		tx.AddRecord("users", r.ID, 0)
	}

	snaps, err := e.OnBulkInserted(ctx, tx, recs)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	for i, r := range recs {
		assert.Equal(t, 1, r.LatestVersion)
		assert.Equal(t, r.ID, snaps[i].RefID)
		assert.Equal(t, 1, snaps[i].Version)
		assert.Len(t, tx.Snapshots[mockKey("users", r.ID)], 1)
	}
}

func TestEngine_PrecursorMissing(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()

	_, err := e.OnInserted(ctx, tx, newUser(0, "a@x.com", "NYC"))
	assert.ErrorIs(t, err, errclass.ErrPrecursorMissing)
	assert.Empty(t, tx.Snapshots)

	_, err = e.OnBulkInserted(ctx, tx, []*models.Record{newUser(0, "a@x.com", "NYC")})
	assert.ErrorIs(t, err, errclass.ErrPrecursorMissing)
}

func TestEngine_UnknownRecordType(t *testing.T) {
	e := newTestEngine(t, userType())
	rec := newUser(1, "a@x.com", "NYC")
	rec.Type = "posts"

	_, err := e.OnInserted(context.Background(), NewMockTx(), rec)
	assert.ErrorIs(t, err, errclass.ErrUnknownRecordType)
}

func TestEngine_AppendFailureIsVersioningFailure(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(userType())
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(reg, WithMetrics(m))

	tx := NewMockTx()
	tx.AddRecord("users", 1, 0)
	cause := errors.New("disk I/O error")
	tx.AppendErr = cause
	rec := newUser(1, "a@x.com", "NYC")

	_, err = e.OnInserted(ctx, tx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrVersioningFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, rec.LatestVersion)
	assert.Equal(t, 0, tx.Counters["users/1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("users", "E_VERSIONING_FAILURE")))
}

func TestEngine_AdvanceFailureIsVersioningFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 0)
	tx.AdvanceErr = errors.New("database is closed")

	_, err := e.OnInserted(ctx, tx, newUser(1, "a@x.com", "NYC"))
	assert.ErrorIs(t, err, errclass.ErrVersioningFailure)
}

func TestEngine_DuplicateVersionPropagates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 1)
	// A stray version 2 row, as left by a writer that bypassed the counter
	sel := mustSelector(t, userType())
	require.NoError(t, tx.AppendSnapshot(ctx, sel, &models.Snapshot{RefID: 1, Version: 1}))
	require.NoError(t, tx.AppendSnapshot(ctx, sel, &models.Snapshot{RefID: 1, Version: 2}))

	rec := newUser(1, "b@x.com", "NYC")
	_, err := e.OnUpdated(ctx, tx, rec, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrDuplicateVersion)
	assert.NotErrorIs(t, err, errclass.ErrVersioningFailure)
	assert.Equal(t, 1, tx.Counters["users/1"])
}

func TestEngine_InsertOfAlreadyVersionedRecord(t *testing.T) {
	e := newTestEngine(t, userType())
	tx := NewMockTx()
	tx.AddRecord("users", 1, 2)

	_, err := e.OnInserted(context.Background(), tx, newUser(1, "a@x.com", "NYC"))
	assert.ErrorIs(t, err, errclass.ErrDuplicateVersion)
}

func TestEngine_CounterMovedUnderneath(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, userType())
	tx := &racingTx{MockTx: NewMockTx()}
	tx.AddRecord("users", 1, 1)
	require.NoError(t, tx.MockTx.AppendSnapshot(ctx, mustSelector(t, userType()), &models.Snapshot{RefID: 1, Version: 1}))

	_, err := e.OnUpdated(ctx, tx, newUser(1, "b@x.com", "NYC"), nil)
	assert.ErrorIs(t, err, errclass.ErrDuplicateVersion)
}

// racingTx bumps the counter between allocation and write-back, as a
// concurrent writer without locking would
type racingTx struct {
	*MockTx
}

func (r *racingTx) AppendSnapshot(ctx context.Context, sel *Selector, snap *models.Snapshot) error {
	if err := r.MockTx.AppendSnapshot(ctx, sel, snap); err != nil {
		return err
	}
	r.MockTx.AddRecord(sel.RecordType().Name, snap.RefID, snap.Version)
	return nil
}

func TestEngine_WithClock(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg, err := NewRegistry(userType())
	require.NoError(t, err)
	e := NewEngine(reg, WithClock(func() time.Time { return fixed }), WithLogger(nil))

	tx := NewMockTx()
	tx.AddRecord("users", 1, 0)
	snap, err := e.OnInserted(context.Background(), tx, newUser(1, "a@x.com", "NYC"))
	require.NoError(t, err)
	assert.Equal(t, fixed, snap.CreatedAt)
	assert.Same(t, reg, e.Registry())
}
