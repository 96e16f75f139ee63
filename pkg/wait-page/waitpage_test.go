package waitpage

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseWait(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5", 5 * time.Second},
		{"0", 0},
		{"600", 600 * time.Second},
		{"601", DefaultWait},
		{"-1", DefaultWait},
		{"soon", DefaultWait},
		{"", DefaultWait},
	}
	for _, c := range cases {
		if got := ParseWait(c.in); got != c.want {
			t.Fatalf("ParseWait(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestGetReturnsGIFAfterWait(t *testing.T) {
	var slept time.Duration
	h := &Handler{Sleep: func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/?wait=2", nil))

	if slept != 2*time.Second {
		t.Fatalf("Slept %v", slept)
	}
	res := rr.Result()
	if ct := res.Header.Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("Content-Type is %q", ct)
	}
	if acao := res.Header.Get("Access-Control-Allow-Origin"); acao != "*" {
		t.Fatalf("ACAO is %q", acao)
	}
	if cc := res.Header.Get("Cache-Control"); cc == "" {
		t.Fatal("No Cache-Control header")
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("GIF89a")) {
		t.Fatalf("Body is %q", rr.Body.Bytes())
	}
}

func TestPostReturnsTextAfterWait(t *testing.T) {
	h := &Handler{Sleep: func(ctx context.Context, d time.Duration) error { return nil }}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/?wait=7", nil))

	if body := rr.Body.String(); body != "// Done after 7 seconds." {
		t.Fatalf("Body is %q", body)
	}
}

func TestCanceledRequestWritesNothing(t *testing.T) {
	h := &Handler{Sleep: func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/?wait=1", nil))

	if rr.Body.Len() != 0 {
		t.Fatalf("Body is %q", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := &Handler{}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("DELETE", "/", nil))

	if rr.Code != 405 {
		t.Fatalf("Status is %d", rr.Code)
	}
}

func TestRealSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Minute); err == nil {
		t.Fatal("Canceled sleep returned nil")
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}
