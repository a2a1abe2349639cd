// Package protocol implements the TLV datagram format spoken by the device's
// native daemons: trigger packets from the hardware button and wake-word
// listeners, PCM audio frames from the audio layer, and location fixes.
package protocol
