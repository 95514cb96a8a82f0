// Package id generates the identifiers assigned to work items at enqueue
// time.
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence], so
// byte-wise comparison follows enqueue order and IDs minted within the same
// millisecond stay strictly increasing. The textual form is lowercase hex.
//
//	g := id.NewGenerator()
//	itemID := g.Next().String()
package id
