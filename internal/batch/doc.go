// Package batch implements the session-scoped work queue that drives both
// certificate generation and email dispatch.
//
// # Core Concepts
//
//   - Session: one batch job. Owns an ordered Queue of Items and a status
//     (idle, processing, paused, completed, cancelled).
//   - Item: one unit of payload plus its retry bookkeeping.
//   - Limiter: remaining capacity of an external resource in the current window.
//   - RetryPolicy: decides retry eligibility and the backoff delay.
//   - Registry: owns session lifetime (create, lookup, remove, idle sweep).
//
// # Step Loop
//
// A session advances one item per step. Each step re-arms the next one on the
// registry clock rather than looping, so Pause and Cancel take effect at the
// next step boundary:
//
//  1. not processing → stop
//  2. reserve one unit from the limiter; exhausted → re-arm at the quota reset
//  3. pick the first pending item whose backoff has elapsed
//  4. none ready → release the unit, re-arm at the earliest backoff, or
//     complete the session
//  5. mark active, run the WorkFunc outside the session lock
//  6. success → done, the reserved unit stays spent
//  7. failure → release the unit, then retry with backoff, fail, or fail and
//     pause on rate limiting
//  8. re-arm immediately inside a batch, or after StepDelay between batches
//
// At most one step is armed and at most one item is active per session.
// Sessions are independent of each other unless they are handed the same
// Limiter.
//
// # Progress
//
// Progress is a read-only snapshot computed under the session lock. Poll-style
// callers read Session.Progress and Session.Results; in-process callers can
// Subscribe for a push feed of the same snapshots.
package batch
