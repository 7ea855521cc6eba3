package core

import (
	"testing"

	"github.com/kilupskalvis/rvc/internal/models"
	"github.com/stretchr/testify/require"
)

func userType() *models.RecordType {
	return &models.RecordType{
		Name:  "users",
		Table: "users",
		Fields: []models.FieldDef{
			{Name: "username", Kind: models.KindString},
			{Name: "email", Kind: models.KindString},
			{Name: "city", Kind: models.KindString},
		},
		Versioned: []string{"email", "city"},
	}
}

func commentType(policy models.UnchangedPolicy) *models.RecordType {
	return &models.RecordType{
		Name:  "comments",
		Table: "comments",
		Fields: []models.FieldDef{
			{Name: "title", Kind: models.KindString},
			{Name: "content", Kind: models.KindString},
		},
		Versioned:   []string{"content"},
		OnUnchanged: policy,
	}
}

func newTestEngine(t *testing.T, types ...*models.RecordType) *Engine {
	t.Helper()
	reg, err := NewRegistry(types...)
	require.NoError(t, err)
	return NewEngine(reg)
}

func mustSelector(t *testing.T, rt *models.RecordType) *Selector {
	t.Helper()
	sel, err := NewSelector(rt)
	require.NoError(t, err)
	return sel
}

func newUser(id int64, email, city string) *models.Record {
	return &models.Record{
		Type: "users",
		ID:   id,
		Attributes: models.Attributes{
			"username": models.String("rick"),
			"email":    models.String(email),
			"city":     models.String(city),
		},
	}
}
