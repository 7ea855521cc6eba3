// Package core implements the versioning engine for RVC including
// attribute selection, snapshot building, version allocation, and the
// lifecycle hooks the record persistence layer calls.
package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedTablePrefix marks the store's own bookkeeping tables
const reservedTablePrefix = "rvc_"

// Selector holds the resolved set of versioned fields for one record type
type Selector struct {
	recordType *models.RecordType
	fields     []string
	set        map[string]struct{}
}

// NewSelector validates a record type and resolves its versioned fields.
// Fields are returned in declaration order.
func NewSelector(rt *models.RecordType) (*Selector, error) {
	if err := validateRecordType(rt); err != nil {
		return nil, err
	}

	rt = cloneRecordType(rt)
	if len(rt.Versioned) > 0 && len(rt.Exclude) > 0 {
		return nil, configErr(rt, "versioned and exclude lists are mutually exclusive")
	}

	wanted := make(map[string]bool)
	switch {
	case len(rt.Versioned) > 0:
		for _, name := range rt.Versioned {
			if _, ok := rt.Field(name); !ok {
				return nil, configErr(rt, fmt.Sprintf("versioned field %q is not declared", name))
			}
			wanted[name] = true
		}
	default:
		excluded := make(map[string]bool)
		for _, name := range rt.Exclude {
			if _, ok := rt.Field(name); !ok && !models.IsReservedName(name) {
				return nil, configErr(rt, fmt.Sprintf("excluded field %q is not declared", name))
			}
			excluded[name] = true
		}
		for _, f := range rt.Fields {
			if !excluded[f.Name] {
				wanted[f.Name] = true
			}
		}
	}

	s := &Selector{recordType: rt, set: make(map[string]struct{}, len(wanted))}
	for _, f := range rt.Fields {
		if wanted[f.Name] {
			s.fields = append(s.fields, f.Name)
			s.set[f.Name] = struct{}{}
		}
	}
	if len(s.fields) == 0 {
		return nil, configErr(rt, "no versioned fields")
	}
	return s, nil
}

// RecordType returns the record type the selector was resolved for
func (s *Selector) RecordType() *models.RecordType {
	return s.recordType
}

// Fields returns the selected field names
func (s *Selector) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Contains reports whether name is a versioned field
func (s *Selector) Contains(name string) bool {
	_, ok := s.set[name]
	return ok
}

// Changed reports whether any selected field differs between two attribute sets
func (s *Selector) Changed(before, after models.Attributes) bool {
	for _, name := range s.fields {
		if !before.Get(name).Equal(after.Get(name)) {
			return true
		}
	}
	return false
}

// Registry maps record type names to their selectors. It is built once at
// startup and never modified, so it is safe for concurrent use.
type Registry struct {
	selectors map[string]*Selector
	order     []string
}

// NewRegistry resolves the selector of every record type
func NewRegistry(types ...*models.RecordType) (*Registry, error) {
	r := &Registry{selectors: make(map[string]*Selector, len(types))}
	tables := make(map[string]string)

	for _, rt := range types {
		if rt == nil {
			continue
		}
		sel, err := NewSelector(rt)
		if err != nil {
			return nil, err
		}
		if _, dup := r.selectors[rt.Name]; dup {
			return nil, configErr(rt, "record type declared twice")
		}
		// SQLite table names are case-insensitive
		for _, table := range []string{rt.Table, rt.HistoryTable()} {
			key := strings.ToLower(table)
			if other, dup := tables[key]; dup {
				return nil, configErr(rt, fmt.Sprintf("table %q already used by %q", table, other))
			}
			tables[key] = rt.Name
		}
		r.selectors[rt.Name] = sel
		r.order = append(r.order, rt.Name)
	}
	return r, nil
}

// Selector returns the selector for a record type name
func (r *Registry) Selector(name string) (*Selector, error) {
	sel, ok := r.selectors[name]
	if !ok {
		return nil, errclass.ErrUnknownRecordType.WithMessagef("%q", name)
	}
	return sel, nil
}

// Types returns the registered record types in registration order
func (r *Registry) Types() []*models.RecordType {
	out := make([]*models.RecordType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.selectors[name].recordType)
	}
	return out
}

func validateRecordType(rt *models.RecordType) error {
	if rt.Name == "" {
		return errclass.ErrConfiguration.WithMessage("record type without a name")
	}
	if !identifierPattern.MatchString(rt.Table) {
		return configErr(rt, fmt.Sprintf("invalid table name %q", rt.Table))
	}
	if strings.HasPrefix(strings.ToLower(rt.Table), reservedTablePrefix) {
		return configErr(rt, fmt.Sprintf("table name %q uses the reserved %s prefix", rt.Table, reservedTablePrefix))
	}
	if len(rt.Fields) == 0 {
		return configErr(rt, "no fields declared")
	}

	seen := make(map[string]bool, len(rt.Fields))
	for _, f := range rt.Fields {
		if !identifierPattern.MatchString(f.Name) {
			return configErr(rt, fmt.Sprintf("invalid field name %q", f.Name))
		}
		key := strings.ToLower(f.Name)
		if models.IsReservedName(key) {
			return configErr(rt, fmt.Sprintf("field %q collides with a bookkeeping column", f.Name))
		}
		if f.Kind == models.KindNull {
			return configErr(rt, fmt.Sprintf("field %q has no kind", f.Name))
		}
		if seen[key] {
			return configErr(rt, fmt.Sprintf("field %q declared twice", f.Name))
		}
		seen[key] = true
	}

	switch rt.OnUnchanged {
	case "", models.UnchangedVersion, models.UnchangedSkip:
	default:
		return configErr(rt, fmt.Sprintf("unknown on_unchanged policy %q", rt.OnUnchanged))
	}
	return nil
}

func cloneRecordType(rt *models.RecordType) *models.RecordType {
	c := *rt
	c.Fields = append([]models.FieldDef(nil), rt.Fields...)
	c.Versioned = append([]string(nil), rt.Versioned...)
	c.Exclude = append([]string(nil), rt.Exclude...)
	if c.OnUnchanged == "" {
		c.OnUnchanged = models.UnchangedVersion
	}
	return &c
}

func configErr(rt *models.RecordType, msg string) error {
	return errclass.ErrConfiguration.WithMessagef("record type %s: %s", rt.Name, msg)
}
