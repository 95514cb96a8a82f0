// Package runtime wires the stores a single certd process needs: the Pebble
// session archive, the SQLite usage ledger, local document storage and an
// optional Redis client.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
package runtime
