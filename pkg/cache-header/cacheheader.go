// Package cacheheader computes cache-related response headers.
package cacheheader

import (
	"fmt"
	"net/http"
	"time"
)

// MaxMaxAge is the longest freshness lifetime that will be sent.
// RFC 9111 advises against expiry more than one year in the future.
const MaxMaxAge = 365 * 24 * time.Hour

// Options control the cache headers set on a response.
type Options struct {
	// MaxAge is the freshness lifetime to advertise. Zero means the
	// response is immediately stale (max-age=0, private, Expires: -1).
	// Values above MaxMaxAge are clamped.
	MaxAge time.Duration
	// HTTPPublic selects "public" instead of "private" for plain HTTP
	// responses. Avoid for gzipped resources; some proxies mangle them.
	HTTPPublic bool
	// HTTPSPublic selects "public" instead of "private" for HTTPS
	// responses. Useful for making browsers disk-cache HTTPS resources.
	HTTPSPublic bool
}

// Set writes Date, Expires and Cache-Control on h.
// Date is set here rather than left to the server so that
// Date + MaxAge == Expires exactly.
func (o Options) Set(h http.Header, secure bool, now time.Time) {
	h.Set("Date", now.UTC().Format(http.TimeFormat))

	maxAge := o.MaxAge
	if maxAge > MaxMaxAge {
		maxAge = MaxMaxAge
	}
	if maxAge <= 0 {
		h.Set("Expires", "-1")
		h.Set("Cache-Control", "max-age=0, private")
		return
	}

	privacy := "private"
	if (secure && o.HTTPSPublic) || (!secure && o.HTTPPublic) {
		privacy = "public"
	}
	h.Set("Expires", now.Add(maxAge).UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", fmt.Sprintf("max-age=%d, %s", int(maxAge/time.Second), privacy))
}

// SetRequest sets the headers for the given request, detecting HTTPS
// from the request TLS state.
func (o Options) SetRequest(h http.Header, r *http.Request, now time.Time) {
	o.Set(h, r.TLS != nil, now)
}

// SetNoStore marks a response as uncacheable by any cache.
func SetNoStore(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "-1")
}
