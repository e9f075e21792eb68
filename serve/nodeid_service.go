package serve

import (
	"bytes"
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zero-day-ai/identity/nodeid"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nodeid.v1.NodeIdentifierService"

// Method names of the node identifier service.
const (
	MethodGenerateInstanceNode        = "/" + ServiceName + "/GenerateInstanceNode"
	MethodGenerateInstanceNodeSession = "/" + ServiceName + "/GenerateInstanceNodeSession"
	MethodParse                       = "/" + ServiceName + "/Parse"
	MethodAssociateDisplayName        = "/" + ServiceName + "/AssociateDisplayName"
	MethodDisplayName                 = "/" + ServiceName + "/DisplayName"
	MethodNameAssociations            = "/" + ServiceName + "/NameAssociations"
)

// Field names of the Struct messages exchanged by Parse, AssociateDisplayName
// and DisplayName.
const (
	FieldInput        = "input"
	FieldType         = "type"
	FieldID           = "id"
	FieldName         = "name"
	FieldInstancePart = "instance_part"
	FieldSessionPart  = "session_part"
	FieldLogicalPart  = "logical_part"
	FieldDisplayName  = "display_name"
)

// NodeIdentifierServer is the server API of the node identifier service.
// Messages are protobuf well-known types so no generated code is needed.
type NodeIdentifierServer interface {
	// GenerateInstanceNode returns a fresh instance identifier.
	GenerateInstanceNode(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)

	// GenerateInstanceNodeSession returns a fresh session of the given
	// instance identifier.
	GenerateInstanceNodeSession(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)

	// Parse validates {input, type} and returns the identifier's parts.
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)

	// AssociateDisplayName binds {id, name}. id must be an instance node
	// session or a logical node session.
	AssociateDisplayName(context.Context, *structpb.Struct) (*emptypb.Empty, error)

	// DisplayName resolves {id, type}.
	DisplayName(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)

	// NameAssociations returns the diagnostic dump, optionally filtered by
	// a CEL expression.
	NameAssociations(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// NameDumper prints name associations selected by a filter expression.
// *names.Registry implements it.
type NameDumper interface {
	PrintNameAssociationsMatching(w io.Writer, introText, expr string) error
}

// NameAssociationsIntro is the heading of NameAssociations responses.
const NameAssociationsIntro = "Name associations:"

var nodeIdentifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeIdentifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GenerateInstanceNode",
			Handler: unaryHandler(MethodGenerateInstanceNode,
				func() proto.Message { return new(emptypb.Empty) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.GenerateInstanceNode(ctx, req.(*emptypb.Empty))
				}),
		},
		{
			MethodName: "GenerateInstanceNodeSession",
			Handler: unaryHandler(MethodGenerateInstanceNodeSession,
				func() proto.Message { return new(wrapperspb.StringValue) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.GenerateInstanceNodeSession(ctx, req.(*wrapperspb.StringValue))
				}),
		},
		{
			MethodName: "Parse",
			Handler: unaryHandler(MethodParse,
				func() proto.Message { return new(structpb.Struct) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.Parse(ctx, req.(*structpb.Struct))
				}),
		},
		{
			MethodName: "AssociateDisplayName",
			Handler: unaryHandler(MethodAssociateDisplayName,
				func() proto.Message { return new(structpb.Struct) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.AssociateDisplayName(ctx, req.(*structpb.Struct))
				}),
		},
		{
			MethodName: "DisplayName",
			Handler: unaryHandler(MethodDisplayName,
				func() proto.Message { return new(structpb.Struct) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.DisplayName(ctx, req.(*structpb.Struct))
				}),
		},
		{
			MethodName: "NameAssociations",
			Handler: unaryHandler(MethodNameAssociations,
				func() proto.Message { return new(wrapperspb.StringValue) },
				func(s NodeIdentifierServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.NameAssociations(ctx, req.(*wrapperspb.StringValue))
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nodeid/v1/nodeid.proto",
}

func unaryHandler(
	fullMethod string,
	newReq func() proto.Message,
	call func(NodeIdentifierServer, context.Context, proto.Message) (proto.Message, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(NodeIdentifierServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(proto.Message))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterNodeIdentifierServer registers srv on s.
func RegisterNodeIdentifierServer(s grpc.ServiceRegistrar, srv NodeIdentifierServer) {
	s.RegisterService(&nodeIdentifierServiceDesc, srv)
}

// ServiceOption configures the node identifier server.
type ServiceOption func(*nodeIdentifierServer)

// WithNameDumper enables filtered NameAssociations requests.
func WithNameDumper(d NameDumper) ServiceOption {
	return func(s *nodeIdentifierServer) {
		s.dumper = d
	}
}

type nodeIdentifierServer struct {
	svc    *nodeid.Service
	dumper NameDumper
}

// NewNodeIdentifierServer exposes svc over gRPC.
func NewNodeIdentifierServer(svc *nodeid.Service, opts ...ServiceOption) NodeIdentifierServer {
	s := &nodeIdentifierServer{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *nodeIdentifierServer) GenerateInstanceNode(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.svc.GenerateInstanceNode().String()), nil
}

func (s *nodeIdentifierServer) GenerateInstanceNodeSession(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	instance, err := s.svc.ParseInstanceNode(req.GetValue())
	if err != nil {
		return nil, statusFromError(err)
	}
	return wrapperspb.String(s.svc.GenerateInstanceNodeSession(instance).String()), nil
}

func (s *nodeIdentifierServer) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.parseTyped(req, FieldInput)
	if err != nil {
		return nil, err
	}
	return describe(id)
}

func (s *nodeIdentifierServer) AssociateDisplayName(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	raw := fields[FieldID].GetStringValue()
	name := fields[FieldName].GetStringValue()

	if session, err := s.svc.ParseInstanceNodeSession(raw); err == nil {
		s.svc.AssociateDisplayName(session, name)
		return &emptypb.Empty{}, nil
	}
	session, err := s.svc.ParseLogicalNodeSession(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "id %q is neither an instance node session nor a logical node session", raw)
	}
	s.svc.AssociateDisplayNameWithLogicalNode(session, name)
	return &emptypb.Empty{}, nil
}

func (s *nodeIdentifierServer) DisplayName(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	id, err := s.parseTyped(req, FieldID)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(id.DisplayName()), nil
}

func (s *nodeIdentifierServer) NameAssociations(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	var buf bytes.Buffer
	expr := req.GetValue()
	if expr == "" {
		if err := s.svc.PrintAllNameAssociations(&buf, NameAssociationsIntro); err != nil {
			return nil, status.Errorf(codes.Internal, "print name associations: %v", err)
		}
		return wrapperspb.String(buf.String()), nil
	}
	if s.dumper == nil {
		return nil, status.Error(codes.FailedPrecondition, "name filtering is not enabled")
	}
	if err := s.dumper.PrintNameAssociationsMatching(&buf, NameAssociationsIntro, expr); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "filter %q: %v", expr, err)
	}
	return wrapperspb.String(buf.String()), nil
}

func (s *nodeIdentifierServer) parseTyped(req *structpb.Struct, field string) (nodeid.NodeIdentifier, error) {
	fields := req.GetFields()
	t, err := nodeid.ParseType(fields[FieldType].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "type: %v", err)
	}
	id, err := s.svc.Parse(fields[field].GetStringValue(), t)
	if err != nil {
		return nil, statusFromError(err)
	}
	return id, nil
}

func describe(id nodeid.NodeIdentifier) (*structpb.Struct, error) {
	m := map[string]any{
		FieldID:           id.String(),
		FieldType:         id.Type().String(),
		FieldInstancePart: id.InstancePart(),
		FieldDisplayName:  id.DisplayName(),
	}
	if part, ok := nodeid.LookupSessionPart(id); ok {
		m[FieldSessionPart] = part
	}
	if part, ok := nodeid.LookupLogicalPart(id); ok {
		m[FieldLogicalPart] = part
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode identifier: %v", err)
	}
	return out, nil
}
