// Package queue persists alert records that could not be delivered online.
// Records live in a SQLite database so they survive restarts; audio is stored
// as an opaque BLOB. A record's synced flag moves from false to true once and
// never reverts.
package queue
