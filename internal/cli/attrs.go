package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kilupskalvis/rvc/internal/models"
)

// parseAssignments turns field=value arguments into attributes of rt.
// The literal null stores a null.
func parseAssignments(rt *models.RecordType, args []string) (models.Attributes, error) {
	attrs := make(models.Attributes, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		f, ok := rt.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", rt.Name, name)
		}
		v, err := models.ParseValue(f.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		attrs[name] = v
	}
	return attrs, nil
}

// decodeRows decodes a JSON array of objects into attribute rows of rt
func decodeRows(rt *models.RecordType, data []byte) ([]models.Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}

	rows := make([]models.Attributes, 0, len(objects))
	for i, obj := range objects {
		attrs := make(models.Attributes, len(obj))
		for name, raw := range obj {
			f, ok := rt.Field(name)
			if !ok {
				return nil, fmt.Errorf("row %d: %s has no field %q", i, rt.Name, name)
			}
			v, err := models.FromJSON(f.Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i, name, err)
			}
			attrs[name] = v
		}
		rows = append(rows, attrs)
	}
	return rows, nil
}

// parseID parses a record id argument
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

// orderedNames returns the keys of attrs in the order of names, followed by
// any remaining keys sorted
func orderedNames(names []string, attrs models.Attributes) []string {
	out := make([]string, 0, len(attrs))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := attrs[n]; ok {
			out = append(out, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range attrs {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
