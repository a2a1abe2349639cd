// Package server implements the UDP listener for trigger, audio and location
// datagrams from the device daemons, and the HTTP API used by the app to drive
// and observe alert sessions.
package server
