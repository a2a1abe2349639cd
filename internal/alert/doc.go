// Package alert owns the lifecycle of an alert session.
//
// A Machine runs a single goroutine that consumes typed events. Trigger
// sources, the HTTP API and the machine's own background work all talk to it
// by posting events; only the loop changes session state. Work that blocks
// (opening the microphone, remote calls, analysis, delivery) runs on its own
// goroutine and reports back with a result event, so trigger and cancel stay
// responsive while it is in flight.
package alert
