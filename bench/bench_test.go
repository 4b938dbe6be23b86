package bench

import (
	"context"
	"testing"

	"github.com/rarydzu/monoio/engine/local"
	"github.com/rarydzu/monoio/eventqueue"
	"github.com/rarydzu/monoio/kvstore"
	"github.com/rarydzu/monoio/objclient"
	"github.com/rarydzu/monoio/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	mem, err := kvstore.NewMemLevelDB()
	require.NoError(t, err)
	defer mem.Close()
	eng, err := local.New(kvstore.NewKVStore(mem), local.DefaultConfig(), nil)
	require.NoError(t, err)
	defer eng.Close()
	reg := registry.New(func(owner string) (*eventqueue.Queue, error) {
		return eventqueue.New(eng, eventqueue.Config{Owner: owner, Capacity: 8, Policy: eventqueue.DefaultPolicy()})
	}, nil)
	c, err := objclient.New(eng, reg, objclient.DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := Run(context.Background(), c, Config{Workers: 4, Ops: 50, Size: 24, Batch: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.Updates)
	assert.Equal(t, int64(200), res.Fetches)
	assert.Equal(t, int64(400*24), res.Bytes)
	assert.Equal(t, 0, reg.Len())

	_, err = Run(context.Background(), c, Config{}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = Run(ctx, c, Config{Workers: 2, Ops: 10, Size: 8, Batch: 2}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), res.Updates)
	assert.Equal(t, 0, reg.Len())
}
