package webmagic

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cachebreak "github.com/ludios/webmagic/pkg/cache-break"
	cacheheader "github.com/ludios/webmagic/pkg/cache-header"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
)

func newSiteFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"index.html":     "<h1>index</h1>",
		"page.txt":       "plain text",
		"script.js":      "var x = 1;",
		"sub/index.html": "<h1>sub</h1>",
		"img/logo.png":   "png bytes",
		"css/site.css":   "body { background: url(../img/logo.png); }",
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", target, nil))
	return rr
}

func TestServesFile(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	rr := get(t, h, "/page.txt")

	if rr.Code != 200 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if body := rr.Body.String(); body != "plain text" {
		t.Fatalf("Body is %q", body)
	}
	if ct := rr.Result().Header.Get("Content-Type"); ct != "text/plain; charset=UTF-8" {
		t.Fatalf("Content-Type is %q", ct)
	}
}

func TestCompatibilityContentTypes(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	if ct := get(t, h, "/script.js").Result().Header.Get("Content-Type"); ct != "text/javascript" {
		t.Fatalf("Content-Type for .js is %q", ct)
	}
}

func TestUnknownExtensionGetsDefaultType(t *testing.T) {
	fs := newSiteFs(t)
	afero.WriteFile(fs, "blob.weird", []byte("x"), 0644)
	h := New(Config{FS: fs, DefaultType: "application/octet-stream"})
	if ct := get(t, h, "/blob.weird").Result().Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("Content-Type is %q", ct)
	}
}

func TestServesIndexForDirectory(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	for target, want := range map[string]string{
		"/":     "<h1>index</h1>",
		"/sub/": "<h1>sub</h1>",
	} {
		rr := get(t, h, target)
		if rr.Code != 200 {
			t.Fatalf("%s: status is %d", target, rr.Code)
		}
		if body := rr.Body.String(); body != want {
			t.Fatalf("%s: body is %q", target, body)
		}
	}
}

func TestRedirectsDirectoryWithoutSlash(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	rr := get(t, h, "/sub")

	if rr.Code != 301 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if loc := rr.Result().Header.Get("Location"); loc != "/sub/" {
		t.Fatalf("Location is %q", loc)
	}
	if !strings.Contains(rr.Body.String(), `<a href="/sub/">`) {
		t.Fatalf("Body is %q", rr.Body.String())
	}
}

func TestRedirectKeepsQuery(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	rr := get(t, h, "/sub?a=1")
	if loc := rr.Result().Header.Get("Location"); loc != "/sub/?a=1" {
		t.Fatalf("Location is %q", loc)
	}
}

func TestNotFoundCases(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	for _, target := range []string{
		"/missing.txt",
		// trailing crud on a plain file
		"/page.txt/",
		"/page.txt/extra",
		// dotfiles
		"/.git/config",
		// directory without an index
		"/img/",
	} {
		rr := get(t, h, target)
		if rr.Code != 404 {
			t.Fatalf("%s: status is %d", target, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "404 Not Found") {
			t.Fatalf("%s: body is %q", target, rr.Body.String())
		}
	}
}

func TestCacheHeadersOnResponses(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	h := New(Config{
		FS:    newSiteFs(t),
		Cache: cacheheader.Options{MaxAge: time.Hour, HTTPPublic: true},
		Now:   func() time.Time { return now },
	})
	res := get(t, h, "/page.txt").Result()

	if cc := res.Header.Get("Cache-Control"); cc != "max-age=3600, public" {
		t.Fatalf("Cache-Control is %q", cc)
	}
	if e := res.Header.Get("Expires"); e != "Thu, 01 Jun 2023 13:00:00 GMT" {
		t.Fatalf("Expires is %q", e)
	}
}

func TestHeadRequest(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("HEAD", "/page.txt", nil))

	if rr.Code != 200 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("HEAD body is %q", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/page.txt", nil))
	if rr.Code != 405 {
		t.Fatalf("Status is %d", rr.Code)
	}
}

func newRewritingHandler(t *testing.T) (*Handler, afero.Fs) {
	t.Helper()
	fs := newSiteFs(t)
	h := New(Config{
		FS:         fs,
		RewriteCSS: true,
		Digests:    cachebreak.NewMemCache(fs),
	})
	return h, fs
}

func TestCSSRewriting(t *testing.T) {
	h, fs := newRewritingHandler(t)
	rr := get(t, h, "/css/site.css")

	if rr.Code != 200 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if ct := rr.Result().Header.Get("Content-Type"); ct != "text/css; charset=UTF-8" {
		t.Fatalf("Content-Type is %q", ct)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "/* processed ") {
		t.Fatalf("Body is %q", body)
	}
	digest, err := cachebreak.NewMemCache(fs).Digest("img/logo.png")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "url(../img/logo.png?cb="+digest+")") {
		t.Fatalf("Body is %q", body)
	}
}

func TestCSSReprocessedWhenReferenceChanges(t *testing.T) {
	h, fs := newRewritingHandler(t)

	before := get(t, h, "/css/site.css").Body.String()
	breakerBefore, err := h.CacheBreaker("/css/site.css")
	if err != nil {
		t.Fatal(err)
	}

	if err := afero.WriteFile(fs, "img/logo.png", []byte("new png bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Chtimes("img/logo.png", time.Now(), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	after := get(t, h, "/css/site.css").Body.String()
	if after == before {
		t.Fatal("Stylesheet not reprocessed after reference changed")
	}
	breakerAfter, err := h.CacheBreaker("/css/site.css")
	if err != nil {
		t.Fatal(err)
	}
	if breakerAfter == breakerBefore {
		t.Fatal("Stylesheet cachebreaker did not change")
	}
}

func TestCSSServedRawWithoutRewriting(t *testing.T) {
	fs := newSiteFs(t)
	h := New(Config{FS: fs})
	body := get(t, h, "/css/site.css").Body.String()
	if strings.Contains(body, "?cb=") || strings.HasPrefix(body, "/* processed") {
		t.Fatalf("Body is %q", body)
	}
}

func TestCacheBreakerForPlainFile(t *testing.T) {
	fs := newSiteFs(t)
	h := New(Config{FS: fs, Digests: cachebreak.NewMemCache(fs)})

	breaker, err := h.CacheBreaker("/img/logo.png")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := cachebreak.NewMemCache(fs).Digest("img/logo.png")
	if breaker != want {
		t.Fatalf("Breaker is %q, want %q", breaker, want)
	}
}

func TestCacheBreakerWithoutDigestCache(t *testing.T) {
	h := New(Config{FS: newSiteFs(t)})
	if _, err := h.CacheBreaker("/img/logo.png"); err != ErrNoDigestCache {
		t.Fatalf("Got %v", err)
	}
}

func TestLink(t *testing.T) {
	fs := newSiteFs(t)
	h := New(Config{FS: fs, Digests: cachebreak.NewMemCache(fs)})

	link, err := h.Link("/index.html", "img/logo.png")
	if err != nil {
		t.Fatal(err)
	}
	digest, _ := cachebreak.NewMemCache(fs).Digest("img/logo.png")
	if link != "img/logo.png?cb="+digest {
		t.Fatalf("Link is %q", link)
	}

	remote, err := h.Link("/index.html", "https://cdn.example.com/x.js")
	if err != nil {
		t.Fatal(err)
	}
	if remote != "https://cdn.example.com/x.js" {
		t.Fatalf("Link is %q", remote)
	}
}

func TestLinkerUsesProcessedStylesheetDigest(t *testing.T) {
	h, _ := newRewritingHandler(t)

	breaker, err := h.CacheBreaker("/css/site.css")
	if err != nil {
		t.Fatal(err)
	}
	link, err := h.Linker().Link("/index.html", "css/site.css")
	if err != nil {
		t.Fatal(err)
	}
	if link != "css/site.css?cb="+breaker {
		t.Fatalf("Link is %q, want breaker %q", link, breaker)
	}
	// the processed digest differs from the on-disk digest
	rawDigest, err := h.digests.Digest("css/site.css")
	if err != nil {
		t.Fatal(err)
	}
	if breaker == rawDigest {
		t.Fatal("Processed stylesheet breaker equals raw file digest")
	}
}

func TestCSSRebuiltWhenMissingReferenceAppears(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "css/site.css", []byte("body { background: url(../img/logo.png); }"), 0644); err != nil {
		t.Fatal(err)
	}
	h := New(Config{FS: fs, RewriteCSS: true, Digests: cachebreak.NewMemCache(fs)})

	before := get(t, h, "/css/site.css").Body.String()
	if strings.Contains(before, "?cb=") {
		t.Fatalf("Missing reference rewritten: %q", before)
	}

	if err := afero.WriteFile(fs, "img/logo.png", []byte("png bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	after := get(t, h, "/css/site.css").Body.String()
	if !strings.Contains(after, "url(../img/logo.png?cb=") {
		t.Fatalf("Stylesheet not reprocessed after reference appeared: %q", after)
	}
}

func TestNewPanicsOnRewriteWithoutDigests(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("No panic")
		}
	}()
	New(Config{FS: afero.NewMemMapFs(), RewriteCSS: true})
}

func TestChiMount(t *testing.T) {
	fs := newSiteFs(t)
	h := New(Config{FS: fs, Digests: cachebreak.NewMemCache(fs), RewriteCSS: true})
	r := chi.NewRouter()
	r.Mount("/static", http.StripPrefix("/static", h))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/static/page.txt", nil))
	if rr.Code != 200 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if body, err := io.ReadAll(rr.Result().Body); err != nil || string(body) != "plain text" {
		t.Fatalf("Body is %s", body)
	}
}

func TestChiMountDirectoryRedirect(t *testing.T) {
	fs := newSiteFs(t)
	h := New(Config{FS: fs})
	r := chi.NewRouter()
	r.Mount("/static", http.StripPrefix("/static", h))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/static/sub", nil))
	if rr.Code != 301 {
		t.Fatalf("Status is %d", rr.Code)
	}
	// the redirect must keep the mount prefix the client used
	if loc := rr.Result().Header.Get("Location"); loc != "/static/sub/" {
		t.Fatalf("Location is %q", loc)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/static/sub?a=1", nil))
	if loc := rr.Result().Header.Get("Location"); loc != "/static/sub/?a=1" {
		t.Fatalf("Location is %q", loc)
	}
}
