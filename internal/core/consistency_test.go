package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/rvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecords struct {
	records map[string][]*models.Record
	err     error
}

func (s *stubRecords) ListRecords(ctx context.Context, rt *models.RecordType) ([]*models.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records[rt.Name], nil
}

func TestCheckRecord_Consistent(t *testing.T) {
	sel, err := NewSelector(userType())
	require.NoError(t, err)
	rec := newUser(1, "b@x.com", "NYC")
	rec.LatestVersion = 2

	snaps := []*models.Snapshot{
		{RefID: 1, Version: 1, Fields: models.Attributes{"email": models.String("a@x.com"), "city": models.String("NYC")}},
		{RefID: 1, Version: 2, Fields: models.Attributes{"email": models.String("b@x.com"), "city": models.String("NYC")}},
	}
	assert.Empty(t, CheckRecord(sel, rec, snaps))
}

func TestCheckRecord_Findings(t *testing.T) {
	sel, err := NewSelector(userType())
	require.NoError(t, err)
	rec := newUser(1, "c@x.com", "NYC")
	rec.LatestVersion = 3

	snaps := []*models.Snapshot{
		{RefID: 1, Version: 1, Fields: models.Attributes{"email": models.String("a@x.com"), "city": models.String("NYC")}},
		{RefID: 1, Version: 3, Fields: models.Attributes{"email": models.String("b@x.com"), "city": models.String("NYC")}},
	}

	findings := CheckRecord(sel, rec, snaps)
	kinds := make([]FindingKind, 0, len(findings))
	for _, f := range findings {
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []FindingKind{FindingCountMismatch, FindingGap, FindingDrift}, kinds)
	assert.Contains(t, findings[2].String(), "users/1 drift: field email")
}

func TestChecker_CheckAll(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(userType(), commentType(""))
	require.NoError(t, err)
	e := NewEngine(reg)
	tx := NewMockTx()

	good := newUser(1, "a@x.com", "NYC")
	stale := newUser(2, "b@x.com", "LA")
	for _, r := range []*models.Record{good, stale} {
		tx.AddRecord("users", r.ID, 0)
		_, err := e.OnInserted(ctx, tx, r)
		require.NoError(t, err)
	}
	// Updated without going through the engine
	stale.Attributes["city"] = models.String("SF")

	records := &stubRecords{records: map[string][]*models.Record{"users": {stale, good}}}
	findings, err := NewChecker(reg, records, tx).CheckAll(ctx)
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, int64(2), findings[0].RecordID)
	assert.Equal(t, FindingDrift, findings[0].Kind)
}

func TestChecker_Errors(t *testing.T) {
	reg, err := NewRegistry(userType())
	require.NoError(t, err)

	c := NewChecker(reg, &stubRecords{err: errors.New("boom")}, NewMockTx())
	_, err = c.CheckAll(context.Background())
	assert.Error(t, err)

	_, err = c.CheckType(context.Background(), "posts")
	assert.Error(t, err)
}
