package models

import "time"

// Bookkeeping columns managed by the store. They are never attribute fields.
const (
	ColumnID            = "id"
	ColumnLatestVersion = "latest_version"
	ColumnCreatedAt     = "created_at"
	ColumnUpdatedAt     = "updated_at"
	ColumnRefID         = "ref_id"
	ColumnVersion       = "version"
)

// IsReservedName reports whether name collides with a bookkeeping column
// of either the record table or the history table
func IsReservedName(name string) bool {
	switch name {
	case ColumnID, ColumnLatestVersion, ColumnCreatedAt, ColumnUpdatedAt, ColumnRefID, ColumnVersion:
		return true
	}
	return false
}

// FieldDef declares one persisted attribute of a record type
type FieldDef struct {
	Name string
	Kind Kind
}

// UnchangedPolicy decides what an update that leaves every versioned field
// untouched does
type UnchangedPolicy string

const (
	// UnchangedVersion writes a snapshot on every update
	UnchangedVersion UnchangedPolicy = "version"
	// UnchangedSkip writes no snapshot when no versioned field changed
	UnchangedSkip UnchangedPolicy = "skip"
)

// RecordType describes a table whose rows are versioned.
// Versioned and Exclude are mutually exclusive; when both are empty every
// declared field is versioned.
type RecordType struct {
	Name        string
	Table       string
	Fields      []FieldDef
	Versioned   []string
	Exclude     []string
	OnUnchanged UnchangedPolicy
}

// HistoryTable returns the name of the companion snapshot table
func (rt *RecordType) HistoryTable() string {
	return rt.Table + "_versions"
}

// Field looks up a declared field by name
func (rt *RecordType) Field(name string) (FieldDef, bool) {
	for _, f := range rt.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Record is a tracked row. ID 0 means the store has not assigned one yet.
type Record struct {
	Type          string     `json:"type"`
	ID            int64      `json:"id"`
	Attributes    Attributes `json:"attributes"`
	LatestVersion int        `json:"latest_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasIdentity returns true once the store has assigned a primary key
func (r *Record) HasIdentity() bool {
	return r.ID > 0
}
