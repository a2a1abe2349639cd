// Package capture records corroborating audio for an active alert.
//
// A Recording reads one microphone stream with three periodic processes on the
// injected clock: an encoder that appends a chunk every ChunkInterval, a level
// sampler every SampleInterval that drives silence detection, and a one-second
// duration timer that enforces MaxDuration. Whatever ends the recording, the
// stream is closed and the listener's OnComplete fires exactly once.
package capture
