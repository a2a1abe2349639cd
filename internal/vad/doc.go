// Package vad measures signal energy on PCM-16 windows. Each window yields a
// level normalized to 0..1 and a sound/silence decision against a threshold,
// which the capture engine uses for silence auto-stop.
package vad
