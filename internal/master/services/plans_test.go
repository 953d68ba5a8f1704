package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

func TestPlanCreateAndList(t *testing.T) {
	db, _ := newSQLMockDB(t)
	s := NewPlanService(db, &fakeRepoManager{newMemStore()}, logging.Nop())
	ctx := context.Background()

	p, err := s.Create(ctx, "Basic", 9.99, 30)
	require.NoError(t, err)
	assert.Equal(t, "basic", p.Name)

	_, err = s.Create(ctx, "basic", 1, 30)
	assert.True(t, errors.Is(err, common.ErrPlanExists))

	_, err = s.Create(ctx, "pro", -1, 30)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
	_, err = s.Create(ctx, "pro", 1, 0)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9.99, list[0].Price)
}
