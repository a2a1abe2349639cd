// Package reconcile drains the offline queue once connectivity returns.
//
// Records are replayed oldest first. A failing record is logged, counted and
// left pending for the next pass; it never aborts the batch. Only one pass
// runs at a time: a pass requested while another is in progress returns
// immediately.
package reconcile
