// Package client provides the `certd` command-line client.
//
// The CLI talks to the certd HTTP or gRPC endpoint to start certificate
// and email sessions and to inspect or steer them from a terminal.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc; the standalone binary reads CERTD_HTTP and
// defaults to http://127.0.0.1:8080. The gRPC address is read from
// CERTD_GRPC (default 127.0.0.1:9090). --transport selects http or grpc.
//
// Usage
//
//	certd generate --file batch.json --watch
//	certd email --file messages.json --session-id mail-2024
//
//	certd session poll --id mail-2024
//	certd session pause --id mail-2024
//	certd session resume --id mail-2024 --transport grpc
//	certd session watch --id mail-2024
//	certd session list
//	certd session archive --limit 5
//
// Notes
//
//   - Request documents use the same JSON shape as the HTTP API.
//   - poll includes the results only once the session has finished.
//   - watch prints one JSON progress snapshot per line and returns when
//     the session completes or is cancelled.
package client
