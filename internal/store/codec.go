package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/rvc/internal/models"
)

// columnType returns the SQLite declared type for a field kind
func columnType(k models.Kind) string {
	switch k {
	case models.KindInt, models.KindBool:
		return "INTEGER"
	case models.KindFloat:
		return "REAL"
	case models.KindTime:
		return "DATETIME"
	}
	return "TEXT"
}

// quoteIdent quotes a validated identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// toSQL converts a value into a driver argument
func toSQL(v models.Value) any {
	switch v.Kind() {
	case models.KindString:
		return v.Str()
	case models.KindInt:
		return v.Int()
	case models.KindFloat:
		return v.Float()
	case models.KindBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	case models.KindTime:
		return formatTime(v.Time())
	}
	return nil
}

// scanTarget returns a destination for a column of the given kind and a
// function turning the scanned content back into a value
func scanTarget(k models.Kind) (any, func() models.Value) {
	switch k {
	case models.KindInt:
		var n sql.NullInt64
		return &n, func() models.Value {
			if !n.Valid {
				return models.Null()
			}
			return models.Int(n.Int64)
		}
	case models.KindFloat:
		var n sql.NullFloat64
		return &n, func() models.Value {
			if !n.Valid {
				return models.Null()
			}
			return models.Float(n.Float64)
		}
	case models.KindBool:
		var n sql.NullInt64
		return &n, func() models.Value {
			if !n.Valid {
				return models.Null()
			}
			return models.Bool(n.Int64 != 0)
		}
	case models.KindTime:
		var n sql.NullString
		return &n, func() models.Value {
			if !n.Valid {
				return models.Null()
			}
			return models.Time(parseTimestamp(n.String))
		}
	}
	var n sql.NullString
	return &n, func() models.Value {
		if !n.Valid {
			return models.Null()
		}
		return models.String(n.String)
	}
}

// checkAttributes verifies names and kinds of attributes against the record type
func checkAttributes(rt *models.RecordType, attrs models.Attributes) error {
	for name, v := range attrs {
		f, ok := rt.Field(name)
		if !ok {
			return fmt.Errorf("%s has no field %q", rt.Name, name)
		}
		if !v.IsNull() && v.Kind() != f.Kind {
			return fmt.Errorf("%s.%s expects %s, got %s", rt.Name, name, f.Kind, v.Kind())
		}
	}
	return nil
}
