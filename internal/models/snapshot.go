package models

import "time"

// Trigger names the lifecycle event that produced a snapshot
type Trigger string

const (
	TriggerInsert     Trigger = "insert"
	TriggerUpdate     Trigger = "update"
	TriggerBulkInsert Trigger = "bulk_insert"
)

// Snapshot is one immutable capture of a record's versioned fields
type Snapshot struct {
	RecordType string     `json:"record_type"`
	RefID      int64      `json:"ref_id"`
	Version    int        `json:"version"`
	Fields     Attributes `json:"fields"`
	CreatedAt  time.Time  `json:"created_at"`
}
