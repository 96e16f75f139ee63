// Package safeheader sets HTTP header values with protection against
// response-splitting attacks.
package safeheader

import (
	"fmt"
	"net/http"
)

// ValidValue reports whether v is a valid HTTP header value, i.e. one
// that cannot split into multiple message headers. A linefeed is only
// allowed when followed by SP or HT (line folding); CR and NUL are
// never allowed.
func ValidValue(v string) bool {
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case 0, '\r':
			return false
		case '\n':
			if i+1 >= len(v) || (v[i+1] != ' ' && v[i+1] != '\t') {
				return false
			}
		}
	}
	return true
}

// CheckValue returns an error if v is not a valid header value.
func CheckValue(v string) error {
	if !ValidValue(v) {
		return fmt.Errorf("header value %q splits into multiple message headers", v)
	}
	return nil
}

// Set replaces the named header with the given values after validating
// every value. On error the header is left untouched.
func Set(h http.Header, name string, values ...string) error {
	for _, v := range values {
		if err := CheckValue(v); err != nil {
			return err
		}
	}
	h.Del(name)
	for _, v := range values {
		h.Add(name, v)
	}
	return nil
}

// Add adds a value for the named header after validating it.
func Add(h http.Header, name, value string) error {
	if err := CheckValue(value); err != nil {
		return err
	}
	h.Add(name, value)
	return nil
}
