package grpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	certsvc "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/services/certificates"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// SessionsServiceName is the fully qualified gRPC service name.
const SessionsServiceName = "certd.v1.Sessions"

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	MethodStartGeneration = "/" + SessionsServiceName + "/StartGeneration"
	MethodStartEmail      = "/" + SessionsServiceName + "/StartEmail"
	MethodPoll            = "/" + SessionsServiceName + "/Poll"
	MethodControl         = "/" + SessionsServiceName + "/Control"
	MethodList            = "/" + SessionsServiceName + "/List"
	MethodArchived        = "/" + SessionsServiceName + "/Archived"
	MethodListArchived    = "/" + SessionsServiceName + "/ListArchived"
	MethodWatch           = "/" + SessionsServiceName + "/Watch"
)

type sessionsServer struct {
	svc    *certsvc.Service
	logger logpkg.Logger
}

type sessionReq struct {
	SessionID string `json:"session_id"`
}

type controlReq struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

type listArchivedReq struct {
	Limit int `json:"limit"`
}

// SessionsServiceDesc describes certd.v1.Sessions. Every message is a
// google.protobuf.Struct holding the JSON form of the service types.
var SessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionsServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartGeneration", func(s *sessionsServer, ctx context.Context, req certsvc.GenerateRequest) (any, error) {
			return s.svc.StartGeneration(ctx, req)
		}),
		unary("StartEmail", func(s *sessionsServer, ctx context.Context, req certsvc.EmailRequest) (any, error) {
			return s.svc.StartEmail(ctx, req)
		}),
		unary("Poll", func(s *sessionsServer, ctx context.Context, req sessionReq) (any, error) {
			return s.svc.Poll(ctx, req.SessionID)
		}),
		unary("Control", func(s *sessionsServer, ctx context.Context, req controlReq) (any, error) {
			action, err := certsvc.ParseAction(req.Action)
			if err != nil {
				return nil, err
			}
			return s.svc.Control(ctx, req.SessionID, action)
		}),
		unary("List", func(s *sessionsServer, ctx context.Context, _ struct{}) (any, error) {
			return map[string]any{"sessions": s.svc.List(ctx)}, nil
		}),
		unary("Archived", func(s *sessionsServer, ctx context.Context, req sessionReq) (any, error) {
			return s.svc.Archived(ctx, req.SessionID)
		}),
		unary("ListArchived", func(s *sessionsServer, ctx context.Context, req listArchivedReq) (any, error) {
			limit := req.Limit
			if limit <= 0 {
				limit = 50
			}
			recs, err := s.svc.ListArchived(ctx, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"sessions": recs}, nil
		}),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "certd/v1/sessions.proto",
}

func unary[Req any](name string, call func(*sessionsServer, context.Context, Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := FromStruct(req.(*structpb.Struct), &r); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				out, err := call(srv.(*sessionsServer), ctx, r)
				if err != nil {
					return nil, toStatus(err)
				}
				return ToStruct(out)
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionsServiceName + "/" + name}
			return interceptor(ctx, in, info, h)
		},
	}
}

// watchHandler streams progress snapshots until the session finishes, is
// removed, or the client goes away.
func watchHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*sessionsServer)
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	var req sessionReq
	if err := FromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ctx := stream.Context()
	ch, cancel, err := s.svc.Subscribe(ctx, req.SessionID, 16)
	if err != nil {
		return toStatus(err)
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-ch:
			if !ok {
				return nil
			}
			out, err := ToStruct(p)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(out); err != nil {
				s.logger.Debug("watch client gone", logpkg.SessionID(req.SessionID), logpkg.Err(err))
				return err
			}
			if p.Status.Terminal() {
				return nil
			}
		}
	}
}

// ToStruct converts v to a Struct through its JSON encoding. v must encode
// as a JSON object.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStruct decodes s into dst, rejecting unknown fields.
func FromStruct(s *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, batch.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, batch.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, batch.ErrDuplicateSession):
		code = codes.AlreadyExists
	case errors.Is(err, batch.ErrAlreadyProcessing),
		errors.Is(err, batch.ErrNotProcessing),
		errors.Is(err, batch.ErrNotPaused),
		errors.Is(err, batch.ErrSessionTerminal):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
