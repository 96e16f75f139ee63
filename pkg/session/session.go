package session

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"time"
)

const (
	// Cookie sent over plain HTTP.
	insecureCookieName = "__"
	// Cookie sent only over HTTPS. The name is different so that the
	// two never collide.
	secureCookieName = "_s"

	// Length of the session ID in bytes.
	IDLength = 16

	encodedLength = 24
)

// Permanent is the expiry time used for session cookies.
// Far enough in the future to outlive any browser session.
var Permanent = time.Unix(2147483647, 0).UTC()

// Installer reads or sets a session cookie on a request/response pair.
// The zero value is ready to use.
type Installer struct {
	// Random is the source of session IDs.
	// crypto/rand is used if nil.
	Random io.Reader
	// Domain for the cookie. Empty means host-only.
	Domain string
	// Path for the cookie. "/" if empty.
	Path string
}

// GetSet returns the session ID for the request, setting a new session
// cookie on the response if the request did not carry a valid one.
//
// HTTP requests use the insecure cookie, HTTPS requests the secure
// cookie (set with the Secure flag). A cookie that is not 24 characters
// of base64, or that does not decode to exactly 16 bytes, is ignored
// and replaced.
func (ins *Installer) GetSet(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	secure := r.TLS != nil
	name := insecureCookieName
	if secure {
		name = secureCookieName
	}

	if cookie, err := r.Cookie(name); err == nil && len(cookie.Value) == encodedLength {
		if id, err := base64.StdEncoding.DecodeString(cookie.Value); err == nil && len(id) == IDLength {
			return id, nil
		}
	}

	random := ins.Random
	if random == nil {
		random = rand.Reader
	}
	id := make([]byte, IDLength)
	if _, err := io.ReadFull(random, id); err != nil {
		return nil, err
	}

	cookiePath := ins.Path
	if cookiePath == "" {
		cookiePath = "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   base64.StdEncoding.EncodeToString(id),
		Path:    cookiePath,
		Domain:  ins.Domain,
		Expires: Permanent,
		Secure:  secure,
	})
	return id, nil
}
