// Package clock abstracts wall-clock scheduling so that countdowns, recording
// timers and probe loops can be driven by a virtual clock in tests.
package clock
