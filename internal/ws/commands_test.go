package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ecycle/internal/liveview"
	"ecycle/internal/model"
)

func TestVisibleTo(t *testing.T) {
	rec := liveview.Record{"id": "r1", "requesterId": "user-1"}

	assert.True(t, visibleTo(model.Actor{ID: "user-1", Role: model.RoleUser}, model.RoleTechnician, rec))
	assert.False(t, visibleTo(model.Actor{ID: "user-2", Role: model.RoleUser}, model.RoleTechnician, rec))
	assert.True(t, visibleTo(model.Actor{ID: "tech-1", Role: model.RoleTechnician}, model.RoleTechnician, rec))
	assert.False(t, visibleTo(model.Actor{ID: "rec-1", Role: model.RoleRecycler}, model.RoleTechnician, rec))
	assert.True(t, visibleTo(model.Actor{ID: "adm-1", Role: model.RoleAdmin}, model.RoleTechnician, rec))
}
