// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	grpcserver "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// GrpcTransport implements SessionsTransport over certd.v1.Sessions.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withConn(ctx context.Context, fn func(conn *grpc.ClientConn) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(conn)
}

func (t *GrpcTransport) invoke(ctx context.Context, method string, in any) ([]byte, error) {
	var req *structpb.Struct
	switch v := in.(type) {
	case []byte:
		req = &structpb.Struct{}
		if err := protojson.Unmarshal(v, req); err != nil {
			return nil, err
		}
	default:
		var err error
		if req, err = grpcserver.ToStruct(v); err != nil {
			return nil, err
		}
	}
	var out []byte
	err := t.withConn(ctx, func(conn *grpc.ClientConn) error {
		resp := &structpb.Struct{}
		if err := conn.Invoke(ctx, method, req, resp); err != nil {
			return err
		}
		b, err := protojson.Marshal(resp)
		out = b
		return err
	})
	return out, err
}

// StartGeneration starts a certificate generation session.
func (t *GrpcTransport) StartGeneration(ctx context.Context, body []byte) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodStartGeneration, body)
}

// StartEmail starts an email session.
func (t *GrpcTransport) StartEmail(ctx context.Context, body []byte) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodStartEmail, body)
}

// Poll returns the session progress.
func (t *GrpcTransport) Poll(ctx context.Context, sessionID string) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodPoll, map[string]string{"session_id": sessionID})
}

// Control pauses, resumes or cancels a session.
func (t *GrpcTransport) Control(ctx context.Context, sessionID, action string) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodControl, map[string]string{"session_id": sessionID, "action": action})
}

// List returns the live sessions.
func (t *GrpcTransport) List(ctx context.Context) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodList, map[string]any{})
}

// Archived returns one archived session.
func (t *GrpcTransport) Archived(ctx context.Context, sessionID string) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodArchived, map[string]string{"session_id": sessionID})
}

// ListArchived returns recently archived sessions.
func (t *GrpcTransport) ListArchived(ctx context.Context, limit int) ([]byte, error) {
	return t.invoke(ctx, grpcserver.MethodListArchived, map[string]int{"limit": limit})
}

// Watch streams progress snapshots.
func (t *GrpcTransport) Watch(ctx context.Context, sessionID string, onEvent func([]byte) error) error {
	req, err := grpcserver.ToStruct(map[string]string{"session_id": sessionID})
	if err != nil {
		return err
	}
	return t.withConn(ctx, func(conn *grpc.ClientConn) error {
		stream, err := conn.NewStream(ctx, &grpcserver.SessionsServiceDesc.Streams[0], grpcserver.MethodWatch)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(req); err != nil {
			return err
		}
		if err := stream.CloseSend(); err != nil {
			return err
		}
		for {
			msg := &structpb.Struct{}
			if err := stream.RecvMsg(msg); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			b, err := json.Marshal(msg.AsMap())
			if err != nil {
				return err
			}
			if err := onEvent(b); err != nil {
				return err
			}
		}
	})
}
