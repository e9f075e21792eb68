package serve

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zero-day-ai/identity/nodeid"
)

// Client calls a remote node identifier service. Every identifier string
// received from the server is parsed again through the local Service, so
// callers only ever hold validated identifiers.
type Client struct {
	cc      grpc.ClientConnInterface
	svc     *nodeid.Service
	session nodeid.NodeIdentifier
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallerSession sends session as SessionMetadataKey on every call.
// session must be an instance node session or a logical node session.
func WithCallerSession(session nodeid.NodeIdentifier) ClientOption {
	return func(c *Client) {
		c.session = session
	}
}

// NewClient creates a Client over cc. svc validates every response.
func NewClient(cc grpc.ClientConnInterface, svc *nodeid.Service, opts ...ClientOption) *Client {
	c := &Client{cc: cc, svc: svc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx = appendParentMetadata(ctx)
	if c.session != nil {
		ctx = metadata.AppendToOutgoingContext(ctx, SessionMetadataKey, c.session.String())
	}
	return c.cc.Invoke(ctx, method, req, resp)
}

// GenerateInstanceNode asks the server for a fresh instance identifier.
func (c *Client) GenerateInstanceNode(ctx context.Context) (nodeid.InstanceNodeID, error) {
	resp := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodGenerateInstanceNode, &emptypb.Empty{}, resp); err != nil {
		return nodeid.InstanceNodeID{}, err
	}
	return c.svc.ParseInstanceNode(resp.GetValue())
}

// GenerateInstanceNodeSession asks the server for a fresh session of
// instance.
func (c *Client) GenerateInstanceNodeSession(ctx context.Context, instance nodeid.InstanceNodeID) (nodeid.InstanceNodeSessionID, error) {
	resp := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodGenerateInstanceNodeSession, wrapperspb.String(instance.String()), resp); err != nil {
		return nodeid.InstanceNodeSessionID{}, err
	}
	return c.svc.ParseInstanceNodeSession(resp.GetValue())
}

// Parse has the server validate input as type t.
func (c *Client) Parse(ctx context.Context, input string, t nodeid.Type) (nodeid.NodeIdentifier, error) {
	req, err := structpb.NewStruct(map[string]any{FieldInput: input, FieldType: t.String()})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, MethodParse, req, resp); err != nil {
		return nil, err
	}
	return c.svc.Parse(resp.GetFields()[FieldID].GetStringValue(), t)
}

// AssociateDisplayName binds name to a session on the server.
func (c *Client) AssociateDisplayName(ctx context.Context, session nodeid.NodeIdentifier, name string) error {
	switch session.(type) {
	case nodeid.InstanceNodeSessionID, nodeid.LogicalNodeSessionID:
	case nil:
		return fmt.Errorf("associate display name: nil session")
	default:
		return fmt.Errorf("associate display name: %s is not a session identifier", session.Type())
	}
	req, err := structpb.NewStruct(map[string]any{FieldID: session.String(), FieldName: name})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodAssociateDisplayName, req, new(emptypb.Empty))
}

// DisplayName resolves id on the server.
func (c *Client) DisplayName(ctx context.Context, id nodeid.NodeIdentifier) (string, error) {
	req, err := structpb.NewStruct(map[string]any{FieldID: id.String(), FieldType: id.Type().String()})
	if err != nil {
		return "", err
	}
	resp := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodDisplayName, req, resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// NameAssociations returns the server's name dump. An empty filter lists
// everything.
func (c *Client) NameAssociations(ctx context.Context, filter string) (string, error) {
	resp := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodNameAssociations, wrapperspb.String(filter), resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}
