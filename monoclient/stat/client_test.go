package stat

import (
	"context"
	"net"
	"testing"

	"github.com/rarydzu/monoio/engine/enginetest"
	"github.com/rarydzu/monoio/eventqueue"
	statsrv "github.com/rarydzu/monoio/monoserver/stat"
	"github.com/rarydzu/monoio/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, reg *registry.Registry) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	statsrv.New(reg, nil).Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	c := New(conn)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStatOverGRPC(t *testing.T) {
	eng := enginetest.New()
	reg := registry.New(func(owner string) (*eventqueue.Queue, error) {
		return eventqueue.New(eng, eventqueue.Config{Owner: owner, Capacity: 3, Policy: eventqueue.DefaultPolicy()})
	}, nil)
	defer reg.DestroyAll()
	for _, w := range []string{"w1", "w0"} {
		_, err := reg.GetOrCreate(w)
		require.NoError(t, err)
	}
	q, _ := reg.Get("w1")
	require.NotNil(t, q.AcquireEvent())

	c := dial(t, reg)
	ctx := context.Background()
	st, err := c.Stat(ctx)
	require.NoError(t, err)
	queues := st.Fields["queues"].GetListValue().GetValues()
	require.Len(t, queues, 2)
	assert.Equal(t, "w0", queues[0].GetStructValue().Fields["owner"].GetStringValue())
	w1 := queues[1].GetStructValue().Fields
	assert.Equal(t, float64(3), w1["capacity"].GetNumberValue())
	assert.Equal(t, float64(1), w1["acquired"].GetNumberValue())
	assert.NotNil(t, st.Fields["process"].GetStructValue())

	qs, err := c.QueueStat(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", qs.Fields["owner"].GetStringValue())

	_, err = c.QueueStat(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestNewConnection(t *testing.T) {
	log := zap.NewNop().Sugar()
	t.Setenv("MONOIO_DEV_RUN", "")
	_, err := NewConnection("localhost:0", "", log)
	assert.Error(t, err)

	_, err = NewConnection("localhost:0", t.TempDir(), log)
	assert.Error(t, err)

	t.Setenv("MONOIO_DEV_RUN", "unit test")
	conn, err := NewConnection("localhost:0", "", log)
	require.NoError(t, err)
	conn.Close()
}
