package ui

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"
)

var (
	unicodeOnce sync.Once
	unicodeOK   bool
)

// UnicodeTerminal reports whether stderr can render Unicode glyphs.
// Returns false when output is piped or redirected, when TERM is "dumb",
// and on legacy Windows consoles (Windows Terminal sets WT_SESSION).
func UnicodeTerminal() bool {
	unicodeOnce.Do(func() {
		if os.Getenv("TERM") == "dumb" {
			return
		}
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			return
		}
		if runtime.GOOS == "windows" {
			unicodeOK = os.Getenv("WT_SESSION") != ""
			return
		}
		unicodeOK = true
	})
	return unicodeOK
}

// Icon returns unicode when the terminal supports it, ascii otherwise.
func Icon(unicode, ascii string) string {
	if UnicodeTerminal() {
		return unicode
	}
	return ascii
}

// SanitizeString strips symbols the terminal cannot render.
// On Unicode-capable terminals it returns s unchanged.
func SanitizeString(s string) string {
	if UnicodeTerminal() {
		return s
	}
	return sanitize(s)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r < 0x80:
			b.WriteByte(s[i])
		case r >= 0xFE00 && r <= 0xFE0F:
			// variation selector
		case r <= 0xFF || unicode.Is(unicode.Latin, r):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// Sanitizef formats a string and sanitizes it for the current terminal.
func Sanitizef(format string, args ...interface{}) string {
	return SanitizeString(fmt.Sprintf(format, args...))
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 3 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
