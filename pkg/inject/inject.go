// Package inject derives probe URLs from candidate URLs by overwriting every
// query parameter value with a percent-encoded payload.
package inject

import "strings"

const upperhex = "0123456789ABCDEF"

// Inject returns rawURL with the value of every query parameter replaced by
// the encoded payload. Segments without "=" gain one. Keys keep their order
// and the fragment, if any, is carried over unchanged.
//
// A URL without a query (or with an empty one) is returned as-is. Inject
// never fails: a malformed query is split on "&" like any other.
func Inject(rawURL, payload string) string {
	base, query, fragment, ok := split(rawURL)
	if !ok {
		return rawURL
	}

	enc := Encode(payload)
	segments := strings.Split(query, "&")

	var b strings.Builder
	b.Grow(len(base) + len(segments)*(len(enc)+8) + len(fragment) + 2)
	b.WriteString(base)
	b.WriteByte('?')
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('&')
		}
		key, _, _ := strings.Cut(seg, "=")
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(enc)
	}
	if fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

// HasQuery reports whether rawURL carries a non-empty query component and is
// therefore worth probing.
func HasQuery(rawURL string) bool {
	_, _, _, ok := split(rawURL)
	return ok
}

// Params returns the parameter names of rawURL in order, or nil when it has
// no query.
func Params(rawURL string) []string {
	_, query, _, ok := split(rawURL)
	if !ok {
		return nil
	}
	segments := strings.Split(query, "&")
	keys := make([]string, 0, len(segments))
	for _, seg := range segments {
		key, _, _ := strings.Cut(seg, "=")
		keys = append(keys, key)
	}
	return keys
}

func split(rawURL string) (base, query, fragment string, ok bool) {
	base, rest, found := strings.Cut(rawURL, "?")
	if !found {
		return rawURL, "", "", false
	}
	query, fragment, _ = strings.Cut(rest, "#")
	if query == "" {
		return rawURL, "", "", false
	}
	return base, query, fragment, true
}

// Encode percent-encodes s leaving only ASCII letters, digits, "_.-~" and
// "/" untouched. Spaces become %20, never "+".
func Encode(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '~', '/':
		return true
	}
	return false
}
