package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PageSize)

	p = NewPagination(3, 500)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 100, p.PageSize)

	p = NewPagination(2, 15)
	assert.Equal(t, 15, p.Limit())
	assert.Equal(t, 15, p.Offset())
}

func TestNewPagedResult(t *testing.T) {
	items := []string{"a", "b", "c"}

	r := NewPagedResult(items, 7, NewPagination(1, 3))
	assert.Equal(t, int64(7), r.Total)
	assert.Equal(t, 3, r.TotalPages)
	assert.Equal(t, items, r.Items)

	r = NewPagedResult(items, 6, NewPagination(2, 3))
	assert.Equal(t, 2, r.TotalPages)
}
