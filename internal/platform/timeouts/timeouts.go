// Package timeouts defines shared timeout constants used across the site.
// Centralizing these values keeps every third-party call bounded and makes
// the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request caps the total handling time of a single inbound HTTP request.
const Request = 30 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Upstream is the default budget for one call to a third-party API
// (content source, payments, maps, contact automation, auth profile).
const Upstream = 8 * time.Second

// UpstreamCheckout caps checkout session creation, which users wait on.
const UpstreamCheckout = 10 * time.Second

// CachePurgeInterval spaces sweeps that drop stale cache rows.
const CachePurgeInterval = 10 * time.Minute

// CachePurgeGrace keeps stale rows around briefly so concurrent readers that
// already hold a key see a consistent miss rather than a vanished row.
const CachePurgeGrace = time.Minute
