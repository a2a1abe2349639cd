// Package connectivity tracks whether the device can reach the network.
//
// Prober issues periodic HTTP HEAD requests against a reachability URL and
// publishes transitions; Manual is set by hand and backs offline operation
// and tests. Both expose a synchronous Online read.
package connectivity
