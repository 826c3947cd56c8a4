package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ledgercore/internal/core/id"
)

type mockBase struct {
	ID        id.ID      `db:"id"`
	Version   int        `db:"version"`
	DeletedAt *time.Time `db:"deleted_at"`
}

type mockEntity struct {
	mockBase
	TenantID string `db:"tenant_id"`
	Number   string `db:"number"`
	Lines    []int  `db:"-"`
	Internal string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[mockEntity]()

	assert.ElementsMatch(t, []string{"id", "version", "deleted_at", "tenant_id", "number"}, cols)
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	e := mockEntity{
		mockBase: mockBase{ID: id.New(), Version: 5, DeletedAt: &now},
		TenantID: "t1",
		Number:   "INV-2026-000001",
		Lines:    []int{1, 2},
		Internal: "hidden",
	}

	m := StructToMap(e)

	assert.Equal(t, e.ID, m["id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, &now, m["deleted_at"])
	assert.Equal(t, "t1", m["tenant_id"])
	assert.Equal(t, "INV-2026-000001", m["number"])
	assert.NotContains(t, m, "Lines")
	assert.NotContains(t, m, "Internal")
	assert.Len(t, m, 5)
}

func TestStructToMapPointerAndNonStruct(t *testing.T) {
	e := &mockEntity{TenantID: "t1"}
	m := StructToMap(e)
	assert.Equal(t, "t1", m["tenant_id"])

	assert.Nil(t, StructToMap(42))
}
