package webmagic

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"time"

	cachebreak "github.com/ludios/webmagic/pkg/cache-break"
	cssfix "github.com/ludios/webmagic/pkg/css-fix"

	"github.com/spf13/afero"
)

// cssEntry is the cached result of processing one stylesheet.
type cssEntry struct {
	// processed stylesheet with rewritten url(...)s
	processed []byte
	// digest of the processed bytes, used as this file's cachebreaker
	digest string
	// digest of the source file the entry was built from
	sourceDigest string
	// digests of the referenced files at processing time, keyed by the
	// href as written in the stylesheet
	refDigests map[string]string
}

func (h *Handler) serveCSS(w http.ResponseWriter, r *http.Request, sitePath, fsPath string) {
	entry, err := h.processedCSS(sitePath, fsPath)
	if err != nil {
		// Serve the stylesheet unprocessed rather than failing the
		// request; a scan error in one file should not 500 the site.
		if _, statErr := h.fs.Stat(fsPath); statErr != nil {
			h.notFound.ServeHTTP(w, r)
			return
		}
		h.log.Warn().Err(err).Str("path", fsPath).Msg("Serving stylesheet unprocessed")
		h.serveRaw(w, r, fsPath)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=UTF-8")
	h.cacheOpts.Set(w.Header(), r.TLS != nil, h.now())
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(entry.processed))
}

func (h *Handler) serveRaw(w http.ResponseWriter, r *http.Request, fsPath string) {
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

// processedCSS returns the processed stylesheet for fsPath, rebuilding
// the cache entry when the source file or any referenced file changed.
func (h *Handler) processedCSS(sitePath, fsPath string) (*cssEntry, error) {
	h.cssMu.Lock()
	defer h.cssMu.Unlock()

	sourceDigest, err := h.digests.Digest(fsPath)
	if err != nil {
		return nil, err
	}
	if entry, ok := h.cssCache[fsPath]; ok &&
		entry.sourceDigest == sourceDigest && !h.refsChanged(sitePath, entry) {
		return entry, nil
	}

	content, err := afero.ReadFile(h.fs, fsPath)
	if err != nil {
		return nil, err
	}

	refDigests := make(map[string]string)
	processed, _, err := cssfix.Rewrite(content, func(href string) (string, error) {
		target, ok := cachebreak.ResolveRef(sitePath, href)
		if !ok {
			return href, nil
		}
		digest, err := h.digests.Digest(strings.TrimPrefix(target, "/"))
		if err != nil {
			// Remember the miss with an empty digest, so the entry is
			// rebuilt once the referenced file appears.
			refDigests[href] = ""
			return "", err
		}
		refDigests[href] = digest
		return href + "?cb=" + digest, nil
	})
	if err != nil {
		return nil, err
	}

	out := []byte(fmt.Sprintf("/* processed %s */\n%s", sourceDigest, processed))
	entry := &cssEntry{
		processed:    out,
		digest:       fmt.Sprintf("%x", md5.Sum(out)),
		sourceDigest: sourceDigest,
		refDigests:   refDigests,
	}
	h.cssCache[fsPath] = entry
	h.log.Trace().Str("path", fsPath).Str("digest", entry.digest).Msg("Processed stylesheet")
	return entry, nil
}

// refsChanged reports whether any file referenced by a cached entry has
// changed since the entry was built.
func (h *Handler) refsChanged(sitePath string, entry *cssEntry) bool {
	for href, lastDigest := range entry.refDigests {
		target, ok := cachebreak.ResolveRef(sitePath, href)
		if !ok {
			continue
		}
		nowDigest, err := h.digests.Digest(strings.TrimPrefix(target, "/"))
		if err != nil {
			// A ref that was already missing at build time is only a
			// change once it shows up.
			if lastDigest != "" {
				return true
			}
			continue
		}
		if nowDigest != lastDigest {
			return true
		}
	}
	return false
}
