package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T) (*Client, *service.Service) {
	t.Helper()
	reg := engine.NewRegistry(engine.New(catalog.Default(), engine.Options{}), nil)
	svc := service.New(reg, catalog.Default(), nil, nil)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(svc, nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn), svc
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("localhost:0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestRoundTrip(t *testing.T) {
	c, svc := newTestClient(t)
	ctx := context.Background()

	a := state.Anchor{EntityID: "ent", Timestamp: t0, BirthDate: t0.AddDate(-25, 0, 0)}
	a.State[state.Stress] = 0.2
	got, err := c.CreateEntity(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "ent", got.EntityID)
	assert.True(t, got.Timestamp.Equal(t0))

	ev, err := c.AppendEvent(ctx, "ent", service.EventInput{
		Type:      "experience_strain_financial",
		Severity:  0.8,
		Timestamp: t0.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "ent", ev.Target)

	at := t0.AddDate(0, 0, 4)
	res, err := c.StateAt(ctx, "ent", at, false)
	require.NoError(t, err)
	assert.Equal(t, state.Forward, res.Snapshot.Direction)
	assert.Equal(t, []string{ev.ID}, res.Snapshot.InScope)

	local, err := svc.StateAt(ctx, "ent", at, service.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, local.Digest, res.Digest)
	assert.Equal(t, local.Snapshot.Digest(), res.Snapshot.Digest(), "snapshot survives the wire bit-exact")
}

func TestStatusCodes(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.StateAt(ctx, "ghost", t0, false)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	require.NoError(t, err)
	_, err = c.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.AppendEvent(ctx, "ent", service.EventInput{Type: "win_lottery", Timestamp: t0})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCode(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.NotFound, Code(engine.ErrNoAnchor))
	assert.Equal(t, codes.InvalidArgument, Code(catalog.ErrUnknownEventType))
	assert.Equal(t, codes.Internal, Code(assert.AnError))
}

