// Package dispatch routes a triggered alert to the online or offline path.
//
// Online, the alert becomes a remote record with a location snapshot and one
// pending notification intent per contact; analysis, approval and delivery
// follow once recording completes. Offline, the alert is written to the
// durable queue while a native SMS fallback is sent in parallel. Replay runs
// the online path for a queued record once the device is back online.
package dispatch
