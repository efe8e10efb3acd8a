// Package irc implements the client side of the IRC line protocol:
// decoding raw bytes into text and parsing lines into structured messages.
package irc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Legacy charsets tried, in order, for words that are not valid UTF-8.
var fallbackCharsets = []*charmap.Charmap{charmap.Windows1252, charmap.ISO8859_15}

// Source identifies the origin of a message, parsed from the line prefix.
// The zero value is the "no source" sentinel used for unprefixed lines:
// its string form is empty and Valid reports false, but Nick, Ident and
// Host remain addressable.
type Source struct {
	Nick  string
	Ident string
	Host  string

	raw string
}

// ParseSource splits a message prefix into its parts. A prefix containing
// "!" is a full nick!ident@host; anything else is a bare nick.
func ParseSource(s string) Source {
	src := Source{raw: s}
	i := strings.Index(s, "!")
	if i < 0 {
		src.Nick = s
		return src
	}
	src.Nick = s[:i]
	rest := s[i+1:]
	if j := strings.Index(rest, "@"); j >= 0 {
		src.Ident = rest[:j]
		src.Host = rest[j+1:]
	} else {
		src.Ident = rest
	}
	return src
}

// Valid reports whether the message carried a source prefix.
func (s Source) Valid() bool { return s.raw != "" }

func (s Source) String() string {
	if s.Ident != "" || s.Host != "" {
		return s.Nick + "!" + s.Ident + "@" + s.Host
	}
	return s.Nick
}

// Message is one parsed protocol line. It is constructed per inbound line
// and discarded after dispatch.
type Message struct {
	Raw     string
	Source  Source
	Command string
	Params  []string
}

// Parse turns one protocol line into a Message. It is total over any line
// that is non-empty after trimming a trailing carriage return: a line with
// no source yields the zero Source, a line with no parameters yields an
// empty Params list.
func Parse(line string) Message {
	line = strings.TrimSuffix(line, "\r")
	m := Message{Raw: line}

	rest := line
	if strings.HasPrefix(rest, ":") {
		prefix := rest[1:]
		if i := strings.Index(rest, " "); i >= 0 {
			prefix, rest = rest[1:i], rest[i+1:]
		} else {
			rest = ""
		}
		m.Source = ParseSource(prefix)
	}

	cmd := rest
	if i := strings.Index(rest, " "); i >= 0 {
		cmd, rest = rest[:i], rest[i+1:]
	} else {
		rest = ""
	}
	m.Command = strings.ToUpper(cmd)

	switch {
	case rest == "":
	case strings.HasPrefix(rest, ":"):
		m.Params = []string{rest[1:]}
	default:
		// Everything before " :" splits on single spaces; everything
		// after it is one trailing parameter that may contain spaces.
		if i := strings.Index(rest, " :"); i >= 0 {
			m.Params = append(strings.Split(rest[:i], " "), rest[i+2:])
		} else {
			m.Params = strings.Split(rest, " ")
		}
	}
	return m
}

// Param returns the i-th parameter, or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Decode converts a raw line into text. Each space-separated word is
// decoded independently so a line mixing charsets still produces a usable
// string: UTF-8 is preferred, then the legacy charsets, then a lossy ASCII
// decode that substitutes invalid bytes.
func Decode(raw []byte) string {
	words := bytes.Split(raw, []byte{' '})
	decoded := make([]string, len(words))
	for i, w := range words {
		decoded[i] = decodeWord(w)
	}
	return strings.Join(decoded, " ")
}

func decodeWord(w []byte) string {
	if utf8.Valid(w) {
		return string(w)
	}
	for _, cm := range fallbackCharsets {
		if s, err := cm.NewDecoder().Bytes(w); err == nil {
			return string(s)
		}
	}
	buf := make([]byte, len(w))
	for i, c := range w {
		if c < utf8.RuneSelf {
			buf[i] = c
		} else {
			buf[i] = '?'
		}
	}
	return string(buf)
}
