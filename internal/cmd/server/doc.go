// Package serverrun exposes the Run entrypoint used by the CLI to start
// certd: it opens the runtime, builds the session registry and serves the
// HTTP and gRPC transports until the context is cancelled.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeDefault, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
