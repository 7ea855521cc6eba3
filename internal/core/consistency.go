package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilupskalvis/rvc/internal/models"
	"golang.org/x/sync/errgroup"
)

// FindingKind classifies a divergence between a record and its history
type FindingKind string

const (
	FindingCountMismatch FindingKind = "count_mismatch"
	FindingGap           FindingKind = "gap"
	FindingDrift         FindingKind = "drift"
)

// Finding is one detected violation of the per-record version invariants
type Finding struct {
	RecordType string      `json:"record_type"`
	RecordID   int64       `json:"record_id"`
	Kind       FindingKind `json:"kind"`
	Detail     string      `json:"detail"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s/%d %s: %s", f.RecordType, f.RecordID, f.Kind, f.Detail)
}

// CheckRecord compares a record with its snapshots. snaps must be ordered by
// version, as ListVersions returns them.
func CheckRecord(sel *Selector, rec *models.Record, snaps []*models.Snapshot) []Finding {
	var findings []Finding
	add := func(kind FindingKind, format string, args ...any) {
		findings = append(findings, Finding{
			RecordType: sel.RecordType().Name,
			RecordID:   rec.ID,
			Kind:       kind,
			Detail:     fmt.Sprintf(format, args...),
		})
	}

	if len(snaps) != rec.LatestVersion {
		add(FindingCountMismatch, "latest_version is %d but %d snapshots exist", rec.LatestVersion, len(snaps))
	}

	for i, s := range snaps {
		if s.Version != i+1 {
			add(FindingGap, "expected version %d, found %d", i+1, s.Version)
			break
		}
	}

	if len(snaps) > 0 {
		latest := snaps[len(snaps)-1]
		for _, name := range sel.fields {
			if !latest.Fields.Get(name).Equal(rec.Attributes.Get(name)) {
				add(FindingDrift, "field %s is %s on the record but %s in version %d",
					name, rec.Attributes.Get(name), latest.Fields.Get(name), latest.Version)
			}
		}
	}
	return findings
}

// RecordLister enumerates the current rows of a record type
type RecordLister interface {
	ListRecords(ctx context.Context, rt *models.RecordType) ([]*models.Record, error)
}

// Checker runs the consistency check over stored records. It only reads.
type Checker struct {
	registry *Registry
	records  RecordLister
	history  HistoryStore
}

// NewChecker creates a checker over a record source and its history store
func NewChecker(reg *Registry, records RecordLister, history HistoryStore) *Checker {
	return &Checker{registry: reg, records: records, history: history}
}

// CheckType checks every record of one type
func (c *Checker) CheckType(ctx context.Context, name string) ([]Finding, error) {
	sel, err := c.registry.Selector(name)
	if err != nil {
		return nil, err
	}
	rt := sel.RecordType()

	recs, err := c.records.ListRecords(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", rt.Name, err)
	}

	var findings []Finding
	for _, rec := range recs {
		snaps, err := c.history.ListVersions(ctx, sel, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("list versions of %s/%d: %w", rt.Name, rec.ID, err)
		}
		findings = append(findings, CheckRecord(sel, rec, snaps)...)
	}
	return findings, nil
}

// CheckAll checks every registered type concurrently. Findings are ordered
// by type, then record id.
func (c *Checker) CheckAll(ctx context.Context) ([]Finding, error) {
	var (
		mu  sync.Mutex
		all []Finding
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range c.registry.Types() {
		name := rt.Name
		g.Go(func() error {
			findings, err := c.CheckType(ctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, findings...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].RecordType != all[j].RecordType {
			return all[i].RecordType < all[j].RecordType
		}
		return all[i].RecordID < all[j].RecordID
	})
	return all, nil
}
