package webmagic

import (
	"fmt"
	"html"
	"net/http"

	safeheader "github.com/ludios/webmagic/pkg/safe-header"
)

const redirectTemplate = `<!doctype html>
<html>
<head>
	<meta http-equiv="content-type" content="text/html; charset=UTF-8">
	<title>Redirecting to %s</title>
</head>
<body>
	Redirecting to <a href="%s">%s</a>
</body>
</html>
`

const notFoundTemplate = `<!doctype html>
<html>
<head>
	<meta http-equiv="content-type" content="text/html; charset=UTF-8">
	<title>404 Not Found</title>
</head>
<body>
	<h1>404 Not Found</h1>
	<p>%s</p>
</body>
</html>
`

// Redirect returns a handler that redirects every request to location
// with the given status code, typically 301 or 302, but possibly 303,
// 307 or 308. The location may be relative. The Location header value
// is validated against response splitting.
func Redirect(code int, location string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := safeheader.Set(w.Header(), "Location", location); err != nil {
			http.Error(w, "invalid redirect location", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(code)
		escaped := html.EscapeString(location)
		fmt.Fprintf(w, redirectTemplate, escaped, escaped, escaped)
	})
}

// NotFound returns a handler serving a helpful HTML 404 page.
// The message may contain markup. An empty message gets a default that
// links to the index.
func NotFound(message string) http.Handler {
	if message == "" {
		message = `Page not found. <a href="/">See the index?</a>`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, notFoundTemplate, message)
	})
}
