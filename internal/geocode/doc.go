// Package geocode resolves coordinates to a human-readable address using a
// Nominatim-compatible reverse endpoint. Results are kept in a bounded LRU
// cache keyed by coordinates rounded to five decimals (about one metre), and
// concurrent lookups for the same key share one request. Failures resolve to
// an empty string.
package geocode
