package countstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCountStore(t *testing.T, store CountStore) {
	ctx := context.Background()
	assert := assert.New(t)

	c, err := store.GetCount(ctx, "violations", "tenant-1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)

	assert.NoError(store.Increment(ctx, "violations", "tenant-1"))
	assert.NoError(store.Increment(ctx, "violations", "tenant-1"))
	assert.NoError(store.Increment(ctx, "violations", "tenant-2"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = store.GetCount(ctx, "violations", "tenant-1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = store.GetCount(ctx, "violations", "tenant-2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	// separate counter names do not collide
	c, err = store.GetCount(ctx, "critical", "tenant-1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestMemCountStore(t *testing.T) {
	testCountStore(t, NewMemCountStore())
}

func TestRedisCountStore(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := NewRedisCountStore(srv.Addr(), "", 0)
	require.NoError(t, err)
	testCountStore(t, store)
}
