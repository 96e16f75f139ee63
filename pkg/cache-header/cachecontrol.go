package cacheheader

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the parsed directives of a Cache-Control field.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl parses Cache-Control headers given as a slice of
// field values. Directive names are compared case-insensitively and
// quoted-string arguments are accepted in addition to token form.
// When a directive repeats, the last one wins.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			parts := strings.SplitN(strings.TrimSpace(directive), "=", 2)
			name := strings.ToLower(parts[0])
			if name == "" {
				continue
			}
			var arg string
			if len(parts) > 1 {
				arg = strings.Trim(parts[1], "\"")
			}
			m[name] = arg
		}
	}
	return CacheControl{m}
}

// Get returns the argument of the given directive, along with a boolean
// indicating whether the directive is present.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

// Has returns whether the given directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// MaxAge returns the max-age directive as a duration, along with a
// boolean indicating whether a valid max-age was present.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.deltaSeconds("max-age")
}

func (c CacheControl) deltaSeconds(directive string) (time.Duration, bool) {
	val, ok := c.Get(directive)
	if !ok {
		return 0, false
	}
	secs, err := strconv.Atoi(val)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
