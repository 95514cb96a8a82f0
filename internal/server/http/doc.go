// Package httpserver is the certd REST gateway: JSON endpoints to start
// generation and email sessions, poll and control them, and an SSE feed of
// progress snapshots.
//
// Example:
//
//	s := httpserver.New(rt, certsvc.New(rt, reg), logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
