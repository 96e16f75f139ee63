// Package cachebreak computes content-based cachebreakers for static
// assets: a digest of the file contents appended to the URL as a query
// parameter, so that HTTP caches see a changed file as a new resource.
package cachebreak

import (
	"crypto/md5"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Breaker is implemented by resources that know their own cachebreaker,
// e.g. dynamically processed files whose digest differs from the bytes
// on disk.
type Breaker interface {
	CacheBreaker() (string, error)
}

// DigestCache returns content digests for files, caching them between
// calls. A cached digest is recomputed when the file's size or
// modification time changes.
//
// Implementations must be thread-safe.
type DigestCache interface {
	// Digest returns the hex digest of the file at the given path.
	Digest(path string) (string, error)
	// Purge drops the cached digest for the given path.
	Purge(path string)
}

func hexDigest(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}

// Linker builds cachebroken links for site-relative hrefs.
type Linker struct {
	// Cache provides file digests.
	Cache DigestCache
	// Resolve maps a site path (starting with "/") to a path usable
	// with Cache. If nil, the leading "/" is stripped.
	Resolve func(sitePath string) (string, error)
	// Breakers returns the Breaker for the resource at the given site
	// path, for resources whose cachebreaker differs from the digest
	// of the bytes on disk (e.g. processed stylesheets). Returning nil
	// falls back to Cache.
	Breakers func(sitePath string) Breaker
}

// Link resolves href against basePath (the site path of the document
// containing the link) and returns href with "?cb=<digest>" appended.
// A Breaker provided for the target takes precedence over the digest
// of the file on disk.
//
// Remote hrefs (http://, https://, scheme-relative, data:) and hrefs
// that already carry a query or fragment are returned unchanged.
func (l Linker) Link(basePath, href string) (string, error) {
	target, ok := ResolveRef(basePath, href)
	if !ok {
		return href, nil
	}

	if l.Breakers != nil {
		if b := l.Breakers(target); b != nil {
			breaker, err := b.CacheBreaker()
			if err != nil {
				return "", err
			}
			return href + "?cb=" + breaker, nil
		}
	}
	if l.Cache == nil {
		return "", errors.New("cachebreak: no digest cache")
	}

	resolved := strings.TrimPrefix(target, "/")
	if l.Resolve != nil {
		var err error
		resolved, err = l.Resolve(target)
		if err != nil {
			return "", err
		}
	}
	digest, err := l.Cache.Digest(resolved)
	if err != nil {
		return "", err
	}
	return href + "?cb=" + digest, nil
}

// ResolveRef resolves href against basePath (the site path of the
// document containing the link) and returns the target site path.
// ok is false for hrefs that should not be rewritten: remote hrefs and
// hrefs already carrying a query or fragment.
func ResolveRef(basePath, href string) (target string, ok bool) {
	if !Local(href) || strings.ContainsAny(href, "?#") {
		return "", false
	}
	if strings.HasPrefix(href, "/") {
		return path.Clean(href), true
	}
	return path.Clean(path.Join(path.Dir(basePath), href)), true
}

// Local reports whether href points into this site rather than at a
// remote or inline resource.
func Local(href string) bool {
	return !strings.HasPrefix(href, "http://") &&
		!strings.HasPrefix(href, "https://") &&
		!strings.HasPrefix(href, "//") &&
		!strings.HasPrefix(href, "data:")
}
