package core

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

// MockTx is an in-memory implementation of Tx for testing.
type MockTx struct {
	mu sync.Mutex
	// Counters stores latest_version by "type/id"; a missing key is an unknown record
	Counters map[string]int
	// Snapshots stores history rows by "type/id", in append order
	Snapshots map[string][]*models.Snapshot
	// AppendErr can be set to make AppendSnapshot fail
	AppendErr error
	// AdvanceErr can be set to make AdvanceLatestVersion fail
	AdvanceErr error
}

// NewMockTx creates a new MockTx for testing.
func NewMockTx() *MockTx {
	return &MockTx{
		Counters:  make(map[string]int),
		Snapshots: make(map[string][]*models.Snapshot),
	}
}

func mockKey(recordType string, id int64) string {
	return recordType + "/" + strconv.FormatInt(id, 10)
}

// AddRecord registers a record with the given counter value.
func (m *MockTx) AddRecord(recordType string, id int64, latest int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[mockKey(recordType, id)] = latest
}

// AppendSnapshot stores a snapshot, rejecting duplicate versions.
func (m *MockTx) AppendSnapshot(ctx context.Context, sel *Selector, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	key := mockKey(sel.RecordType().Name, snap.RefID)
	for _, existing := range m.Snapshots[key] {
		if existing.Version == snap.Version {
			return errclass.ErrDuplicateVersion.WithMessagef("%s v%d", key, snap.Version)
		}
	}
	stored := *snap
	stored.Fields = snap.Fields.Clone()
	m.Snapshots[key] = append(m.Snapshots[key], &stored)
	return nil
}

// ListVersions returns copies of the stored snapshots ordered by version.
func (m *MockTx) ListVersions(ctx context.Context, sel *Selector, refID int64) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Snapshot
	for _, s := range m.Snapshots[mockKey(sel.RecordType().Name, refID)] {
		c := *s
		c.Fields = s.Fields.Clone()
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// LatestVersion returns the stored counter.
func (m *MockTx) LatestVersion(ctx context.Context, rt *models.RecordType, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Counters[mockKey(rt.Name, id)]
	if !ok {
		return 0, errclass.ErrRecordNotFound.WithMessage(mockKey(rt.Name, id))
	}
	return v, nil
}

// AdvanceLatestVersion moves the counter from one value to the next.
func (m *MockTx) AdvanceLatestVersion(ctx context.Context, rt *models.RecordType, id int64, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdvanceErr != nil {
		return m.AdvanceErr
	}
	key := mockKey(rt.Name, id)
	v, ok := m.Counters[key]
	if !ok {
		return errclass.ErrRecordNotFound.WithMessage(key)
	}
	if v != from {
		return errclass.ErrDuplicateVersion.WithMessagef("%s latest_version is %d, expected %d", key, v, from)
	}
	m.Counters[key] = to
	return nil
}
