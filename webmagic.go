// Package webmagic is a collection of utilities for building web sites:
// a static file handler with cache headers and CSS-aware cachebreakers,
// trailing-slash redirects, session cookies and CSRF tokens.
package webmagic

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	cachebreak "github.com/ludios/webmagic/pkg/cache-break"
	cacheheader "github.com/ludios/webmagic/pkg/cache-header"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// contentTypes overrides extension lookup with the most compatible
// types rather than the most correct ones. No OS mimetype files are
// consulted, to avoid accidental dependencies on them.
var contentTypes = map[string]string{
	".css":  "text/css; charset=UTF-8",
	".gif":  "image/gif",
	".htm":  "text/html; charset=UTF-8",
	".html": "text/html; charset=UTF-8",
	".ico":  "image/x-icon",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript",
	".json": "application/json",
	".log":  "text/plain",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".txt":  "text/plain; charset=UTF-8",
	".xml":  "text/xml",
}

// ErrNoDigestCache is returned by cachebreaker lookups when the handler
// was built without a digest cache.
var ErrNoDigestCache = errors.New("webmagic: no digest cache configured")

// Config configures a static file Handler.
type Config struct {
	// FS holds the files to serve. Required.
	FS afero.Fs
	// DefaultType is the Content-Type for unknown extensions.
	// "text/html" if empty.
	DefaultType string
	// Cache controls the cache headers on successful responses.
	Cache cacheheader.Options
	// RewriteCSS enables transparent rewriting of .css files to add
	// cachebreakers to url(...) references. Requires Digests. Do not
	// enable for directories with untrusted CSS files: referenced
	// files stay in the digest cache indefinitely.
	RewriteCSS bool
	// Digests caches content digests for cachebreakers.
	Digests cachebreak.DigestCache
	// NotFound renders 404 responses. Defaults to NotFound("").
	NotFound http.Handler
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Now returns the current time. time.Now if nil.
	Now func() time.Time
}

// Handler serves a directory of static files.
//
// Unlike http.FileServer it serves index.html for directories, answers
// /dir with a 301 to /dir/, 404s paths with extra segments under plain
// files, uses a fixed compatibility MIME table, sets cache headers on
// every file response, and can rewrite stylesheets with cachebreakers.
type Handler struct {
	fs          afero.Fs
	defaultType string
	cacheOpts   cacheheader.Options
	rewriteCSS  bool
	digests     cachebreak.DigestCache
	notFound    http.Handler
	log         zerolog.Logger
	now         func() time.Time

	cssMu    sync.Mutex
	cssCache map[string]*cssEntry
}

// New creates a static file handler for the given config.
// It panics if RewriteCSS is set without a digest cache.
func New(config Config) *Handler {
	if config.FS == nil {
		panic("webmagic: Config.FS is required")
	}
	if config.RewriteCSS && config.Digests == nil {
		panic("webmagic: RewriteCSS requires a digest cache")
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	h := &Handler{
		fs:          config.FS,
		defaultType: config.DefaultType,
		cacheOpts:   config.Cache,
		rewriteCSS:  config.RewriteCSS,
		digests:     config.Digests,
		notFound:    config.NotFound,
		log:         logger,
		now:         config.Now,
	}
	if h.defaultType == "" {
		h.defaultType = "text/html"
	}
	if h.notFound == nil {
		h.notFound = NotFound("")
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.rewriteCSS {
		h.cssCache = make(map[string]*cssEntry)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sitePath := path.Clean("/" + r.URL.Path)
	hadSlash := strings.HasSuffix(r.URL.Path, "/") || sitePath == "/"
	if hasHiddenSegment(sitePath) {
		h.notFound.ServeHTTP(w, r)
		return
	}

	fsPath := strings.TrimPrefix(sitePath, "/")
	if fsPath == "" {
		fsPath = "."
	}
	fi, err := h.fs.Stat(fsPath)
	if err != nil {
		h.notFound.ServeHTTP(w, r)
		return
	}

	if fi.IsDir() {
		if !hadSlash {
			// Non-standard relative redirect; all browsers accept it.
			// Built from the raw request URI, not the (possibly
			// prefix-stripped) URL path, so the redirect stays correct
			// when the handler is mounted under http.StripPrefix.
			uri := r.RequestURI
			if uri == "" {
				uri = r.URL.Path
				if r.URL.RawQuery != "" {
					uri += "?" + r.URL.RawQuery
				}
			}
			uriPath, query, hasQuery := strings.Cut(uri, "?")
			location := uriPath + "/"
			if hasQuery {
				location += "?" + query
			}
			Redirect(http.StatusMovedPermanently, location).ServeHTTP(w, r)
			return
		}
		indexFs := path.Join(fsPath, "index.html")
		if _, err := h.fs.Stat(indexFs); err != nil {
			h.notFound.ServeHTTP(w, r)
			return
		}
		indexSite := strings.TrimSuffix(sitePath, "/") + "/index.html"
		h.serveFile(w, r, indexSite, indexFs)
		return
	}

	// Requests like /page/ or /page/extra for a plain file get a 404,
	// to make sure people know it is not okay to link to them.
	if hadSlash {
		h.notFound.ServeHTTP(w, r)
		return
	}
	h.serveFile(w, r, sitePath, fsPath)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, sitePath, fsPath string) {
	if h.rewriteCSS && strings.HasSuffix(fsPath, ".css") {
		h.serveCSS(w, r, sitePath, fsPath)
		return
	}

	f, err := h.fs.Open(fsPath)
	if err != nil {
		h.notFound.ServeHTTP(w, r)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		h.notFound.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", h.contentType(fsPath))
	h.cacheOpts.Set(w.Header(), r.TLS != nil, h.now())
	http.ServeContent(w, r, "", fi.ModTime(), f)
}

func (h *Handler) contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return h.defaultType
}

// CacheBreaker returns the cachebreaker for the file at the given site
// path: the digest of the processed stylesheet for rewritten CSS, the
// content digest of the file on disk otherwise.
func (h *Handler) CacheBreaker(sitePath string) (string, error) {
	p := path.Clean("/" + sitePath)
	fsPath := strings.TrimPrefix(p, "/")
	if h.rewriteCSS && strings.HasSuffix(fsPath, ".css") {
		entry, err := h.processedCSS(p, fsPath)
		if err != nil {
			return "", err
		}
		return entry.digest, nil
	}
	if h.digests == nil {
		return "", ErrNoDigestCache
	}
	return h.digests.Digest(fsPath)
}

// Linker returns a link builder over this handler's files. Rewritten
// stylesheets get their processed-output digest instead of the digest
// of the bytes on disk.
func (h *Handler) Linker() cachebreak.Linker {
	return cachebreak.Linker{
		Cache: h.digests,
		Breakers: func(sitePath string) cachebreak.Breaker {
			if h.rewriteCSS && strings.HasSuffix(sitePath, ".css") {
				return cssBreaker{h: h, sitePath: sitePath}
			}
			return nil
		},
	}
}

// cssBreaker resolves the cachebreaker of a rewritten stylesheet.
type cssBreaker struct {
	h        *Handler
	sitePath string
}

func (b cssBreaker) CacheBreaker() (string, error) {
	return b.h.CacheBreaker(b.sitePath)
}

// Link resolves href against basePath and appends the cachebreaker,
// for use when generating asset links in templates. Remote hrefs and
// hrefs with a query or fragment come back unchanged.
func (h *Handler) Link(basePath, href string) (string, error) {
	return h.Linker().Link(basePath, href)
}

// hasHiddenSegment reports whether any path segment is a dotfile.
// Dot-dot segments never survive path.Clean on a rooted path, so this
// also covers traversal attempts.
func hasHiddenSegment(sitePath string) bool {
	for _, seg := range strings.Split(sitePath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
