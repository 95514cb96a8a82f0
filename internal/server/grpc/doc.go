// Package grpcserver hosts the gRPC surface of certd: the standard health
// service plus certd.v1.Sessions, which mirrors the HTTP session API with
// google.protobuf.Struct payloads carrying the same JSON shapes.
//
// Example:
//
//	s := grpcserver.New(rt, svc, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
