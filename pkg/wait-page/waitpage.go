// Package waitpage serves responses after a client-chosen delay.
// Useful for testing browser and proxy behavior around slow responses.
package waitpage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	cacheheader "github.com/ludios/webmagic/pkg/cache-header"
)

const (
	// DefaultWait is used when no usable wait time is given.
	DefaultWait = 30 * time.Second
	// MaxWait caps the accepted wait time.
	MaxWait = 10 * time.Minute
)

// blankGIF is a 1x1 transparent GIF.
var blankGIF = []byte(
	"GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x00" +
		"\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

// Handler responds after the number of seconds given in the ?wait=
// query parameter. GET returns a 1x1 GIF, POST a short text body.
// Responses are marked uncacheable and allow any origin.
type Handler struct {
	// Sleep waits for the given duration or until the context is
	// canceled. Replaced in tests. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ParseWait converts a ?wait= value to a duration. Values that are not
// whole seconds in [0, MaxWait] yield DefaultWait.
func ParseWait(s string) time.Duration {
	secs, err := strconv.Atoi(s)
	if err != nil {
		return DefaultWait
	}
	d := time.Duration(secs) * time.Second
	if d < 0 || d > MaxWait {
		return DefaultWait
	}
	return d
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d := ParseWait(r.URL.Query().Get("wait"))
	sleep := h.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(r.Context(), d); err != nil {
		// client went away
		return
	}

	cacheheader.SetNoStore(w.Header())
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "image/gif")
		w.Write(blankGIF)
		return
	}
	fmt.Fprintf(w, "// Done after %d seconds.", int(d/time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
