// Package certsvc is the transport-agnostic control surface of certd. It
// turns generate and email requests into batch sessions and exposes poll,
// pause/resume/cancel, list and archive lookups over one session registry.
//
// Generation sessions render one PDF per row and remove themselves on
// cancel; email sessions send one message per item under a provider rate
// limit and stay inspectable after cancel until the idle sweep.
package certsvc
