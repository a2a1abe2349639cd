// Package records is a REST client for the remote alert record store. Alerts
// are created with client-assigned ids so a retried create is detected as a
// conflict instead of producing a duplicate.
package records
