package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client wraps a gRPC connection to an eventsim server.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// #endregion client-struct

// #region constructor
// NewClient connects to the eventsim gRPC server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection. Close does not
// close conn.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// #endregion constructor

// #region calls
// CreateEntity registers an anchor and returns it as stored.
func (c *Client) CreateEntity(ctx context.Context, a state.Anchor) (state.Anchor, error) {
	var out state.Anchor
	if err := c.invoke(ctx, "CreateEntity", a, &out); err != nil {
		return state.Anchor{}, fmt.Errorf("create entity rpc: %w", err)
	}
	return out, nil
}

// AppendEvent appends an event to the entity's timeline.
func (c *Client) AppendEvent(ctx context.Context, entityID string, in service.EventInput) (event.Event, error) {
	var out event.Event
	if err := c.invoke(ctx, "AppendEvent", AppendEventRequest{EntityID: entityID, Event: in}, &out); err != nil {
		return event.Event{}, fmt.Errorf("append event rpc: %w", err)
	}
	return out, nil
}

// StateAt computes the entity's state at at.
func (c *Client) StateAt(ctx context.Context, entityID string, at time.Time, save bool) (service.StateResult, error) {
	var out service.StateResult
	if err := c.invoke(ctx, "StateAt", StateAtRequest{EntityID: entityID, At: at, Save: save}, &out); err != nil {
		return service.StateResult{}, fmt.Errorf("state at rpc: %w", err)
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, dst any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	return fromStruct(out, dst)
}

// #endregion calls
