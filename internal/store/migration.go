package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/kilupskalvis/rvc/internal/models"
)

const currentSchemaVersion = 1

// getSchemaVersion returns the current schema version, 0 if not initialized
func (s *Store) getSchemaVersion() (int, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='rvc_schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM rvc_schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// RunMigrations brings the bookkeeping schema up to date
func (s *Store) RunMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version < currentSchemaVersion {
		return s.Initialize()
	}
	return nil
}

// Provision creates the record table and history table of a record type, and
// adds columns for fields declared or versioned since the tables were created.
// It never drops or alters existing columns. The history table carries one
// column per versioned field.
func (s *Store) Provision(ctx context.Context, sel *core.Selector) error {
	rt := sel.RecordType()
	definition, err := json.Marshal(definitionOf(rt))
	if err != nil {
		return fmt.Errorf("encode %s definition: %w", rt.Name, err)
	}

	return s.WithTx(ctx, func(tx *Tx) error {
		for _, stmt := range provisionStatements(sel) {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("provision %s: %w", rt.Name, err)
			}
		}

		for _, f := range rt.Fields {
			if err := addColumnIfMissing(ctx, tx.tx, rt.Table, f); err != nil {
				return err
			}
			if sel.Contains(f.Name) {
				if err := addColumnIfMissing(ctx, tx.tx, rt.HistoryTable(), f); err != nil {
					return err
				}
			}
		}

		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO rvc_record_types (name, table_name, definition) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET table_name = excluded.table_name, definition = excluded.definition`,
			rt.Name, rt.Table, string(definition))
		if err != nil {
			return fmt.Errorf("register %s: %w", rt.Name, err)
		}
		return nil
	})
}

// provisionStatements returns the DDL for a record type's tables. The
// history table is append-only: (ref_id, version) is unique and rows cannot
// be updated.
func provisionStatements(sel *core.Selector) []string {
	rt := sel.RecordType()
	var cols, versioned strings.Builder
	for _, f := range rt.Fields {
		col := fmt.Sprintf(",\n\t\t%s %s", quoteIdent(f.Name), columnType(f.Kind))
		cols.WriteString(col)
		if sel.Contains(f.Name) {
			versioned.WriteString(col)
		}
	}

	table := quoteIdent(rt.Table)
	history := quoteIdent(rt.HistoryTable())

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latest_version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL%s
	)`, table, cols.String()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref_id INTEGER NOT NULL REFERENCES %s(id),
		version INTEGER NOT NULL CHECK (version > 0),
		created_at DATETIME NOT NULL%s,
		UNIQUE (ref_id, version)
	)`, history, table, versioned.String()),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(ref_id)`,
			quoteIdent("idx_"+rt.HistoryTable()+"_ref"), history),

		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s BEFORE UPDATE ON %s
	BEGIN
		SELECT RAISE(ABORT, 'snapshots are immutable');
	END`, quoteIdent(rt.HistoryTable()+"_immutable"), history),
	}
}

// addColumnIfMissing adds a field column to an existing table
func addColumnIfMissing(ctx context.Context, q querier, table string, f models.FieldDef) error {
	exists, err := columnExists(ctx, q, table, f.Name)
	if err != nil || exists {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(f.Name), columnType(f.Kind))
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, f.Name, err)
	}
	return nil
}

// columnExists checks if a column exists in a table
func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

type fieldJSON struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type definitionJSON struct {
	Table       string      `json:"table"`
	Fields      []fieldJSON `json:"fields"`
	Versioned   []string    `json:"versioned,omitempty"`
	Exclude     []string    `json:"exclude,omitempty"`
	OnUnchanged string      `json:"on_unchanged,omitempty"`
}

func definitionOf(rt *models.RecordType) definitionJSON {
	d := definitionJSON{
		Table:       rt.Table,
		Versioned:   rt.Versioned,
		Exclude:     rt.Exclude,
		OnUnchanged: string(rt.OnUnchanged),
	}
	for _, f := range rt.Fields {
		d.Fields = append(d.Fields, fieldJSON{Name: f.Name, Kind: f.Kind.String()})
	}
	return d
}

// ProvisionedTypes returns the names of the record types registered in this database
func (s *Store) ProvisionedTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM rvc_record_types ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
