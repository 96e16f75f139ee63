// Package cssfix rewrites url(...) references inside stylesheets,
// typically to append cachebreakers. The stylesheet is tokenized with a
// real CSS scanner rather than matched with regular expressions, so
// url() occurrences inside strings and comments are left alone.
package cssfix

import (
	"fmt"
	"strings"

	"github.com/gorilla/css/scanner"
)

// LinkFunc rewrites a single href. Returning the href unchanged leaves
// the reference untouched. An error also leaves the reference untouched
// (a broken ref should not take the whole stylesheet down).
type LinkFunc func(href string) (string, error)

// Rewrite passes every url(...) href in content through link and
// returns the processed stylesheet along with the hrefs that were
// rewritten. Callers use the href list to know which files affect the
// processed output.
func Rewrite(content []byte, link LinkFunc) ([]byte, []string, error) {
	s := scanner.New(string(content))
	var out strings.Builder
	out.Grow(len(content))
	var refs []string

	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return []byte(out.String()), refs, nil
		case scanner.TokenError:
			return nil, nil, fmt.Errorf("cssfix: scan error at line %d, column %d: %s",
				tok.Line, tok.Column, tok.Value)
		case scanner.TokenURI:
			href, quote := splitURI(tok.Value)
			rewritten, err := link(href)
			if err != nil || rewritten == href {
				out.WriteString(tok.Value)
				continue
			}
			refs = append(refs, href)
			out.WriteString("url(" + quote + rewritten + quote + ")")
		default:
			out.WriteString(tok.Value)
		}
	}
}

// splitURI extracts the href and the quote character (if any) from a
// raw url(...) token.
func splitURI(raw string) (href, quote string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "url("), ")")
	inner = strings.TrimSpace(inner)
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		return inner[1 : len(inner)-1], string(inner[0])
	}
	return inner, ""
}
