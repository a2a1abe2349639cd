// Package analysis sends recorded alert audio to the analysis service, which
// stores the audio and returns a short summary suitable for contacts. Requests
// are multipart uploads with bounded concurrency and retry with exponential
// backoff on transient failures.
package analysis
