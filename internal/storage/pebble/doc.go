// Package pebblestore is a thin key/value wrapper around Pebble with an fsync
// policy and prefix scans. certd uses it to keep archived session snapshots.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: "./data/archive"})
//	if err != nil { /* handle */ }
//	defer db.Close()
//	_ = db.Set([]byte("session/abc"), payload)
//	_ = db.Scan([]byte("session/"), func(k, v []byte) bool { return true })
package pebblestore
