// Package audio handles PCM frames coming from the device audio layer. It
// reorders sequenced frames, hands out encoder chunks and level-sampling
// windows from the same stream, and wraps the recorded PCM in a WAV container.
package audio
