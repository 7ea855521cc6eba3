package core

import (
	"fmt"
	"time"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

// BuildSnapshot captures the selected fields of a record's in-memory
// attributes. Selected fields missing from the record are captured as null,
// so every snapshot of a type carries the same field set.
func BuildSnapshot(rec *models.Record, sel *Selector, version int, now time.Time) (*models.Snapshot, error) {
	rt := sel.RecordType()
	if rec.Type != "" && rec.Type != rt.Name {
		return nil, errclass.ErrConfiguration.WithMessagef("record of type %q built with selector for %q", rec.Type, rt.Name)
	}
	if !rec.HasIdentity() {
		return nil, errclass.ErrPrecursorMissing.WithMessagef("%s record has no primary key", rt.Name)
	}
	if version < 1 {
		return nil, fmt.Errorf("invalid version %d for %s/%d", version, rt.Name, rec.ID)
	}

	fields := make(models.Attributes, len(sel.fields))
	for _, name := range sel.fields {
		fields[name] = rec.Attributes.Get(name)
	}

	return &models.Snapshot{
		RecordType: rt.Name,
		RefID:      rec.ID,
		Version:    version,
		Fields:     fields,
		CreatedAt:  now.UTC(),
	}, nil
}
