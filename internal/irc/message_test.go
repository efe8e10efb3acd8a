package irc

import (
	"strings"
	"testing"
)

func TestParsePrefixed(t *testing.T) {
	m := Parse(":nick!user@example.com PRIVMSG #chan :hello world\r")

	if !m.Source.Valid() {
		t.Error("expected a valid source")
	}
	if m.Source.Nick != "nick" || m.Source.Ident != "user" || m.Source.Host != "example.com" {
		t.Errorf("unexpected source parts: %+v", m.Source)
	}
	if m.Command != "PRIVMSG" {
		t.Errorf("expected command PRIVMSG, got %q", m.Command)
	}
	if len(m.Params) != 2 || m.Params[0] != "#chan" || m.Params[1] != "hello world" {
		t.Errorf("unexpected params: %v", m.Params)
	}
}

func TestParseNoSource(t *testing.T) {
	m := Parse("PING :abc123")

	if m.Source.Valid() {
		t.Error("expected the no-source sentinel")
	}
	if m.Source.String() != "" {
		t.Errorf("sentinel string form should be empty, got %q", m.Source.String())
	}
	// The sentinel still exposes empty parts.
	if m.Source.Nick != "" || m.Source.Ident != "" || m.Source.Host != "" {
		t.Errorf("sentinel parts should be empty: %+v", m.Source)
	}
	if m.Command != "PING" || m.Param(0) != "abc123" {
		t.Errorf("unexpected message: %+v", m)
	}
}

func TestParseCommandOnly(t *testing.T) {
	m := Parse("PING")
	if m.Command != "PING" {
		t.Errorf("expected PING, got %q", m.Command)
	}
	if len(m.Params) != 0 {
		t.Errorf("expected no params, got %v", m.Params)
	}
	if m.Param(0) != "" {
		t.Error("Param on a missing index should be empty")
	}
}

func TestParseCaseNormalization(t *testing.T) {
	m := Parse(":server notice you :hi")
	if m.Command != "NOTICE" {
		t.Errorf("command should be upper-cased, got %q", m.Command)
	}
}

func TestParseMiddleAndTrailing(t *testing.T) {
	m := Parse(":irc.example.com 001 Bob :Welcome to the network")
	if m.Source.String() != "irc.example.com" {
		t.Errorf("unexpected source: %q", m.Source.String())
	}
	if m.Source.Nick != "irc.example.com" {
		t.Errorf("a bare source is a nick: %+v", m.Source)
	}
	if m.Param(0) != "Bob" || m.Param(1) != "Welcome to the network" {
		t.Errorf("unexpected params: %v", m.Params)
	}
}

func TestSourceRoundTrip(t *testing.T) {
	for _, raw := range []string{"nick!user@host", "a!b@c.d.e", "x!y@127.0.0.1"} {
		src := ParseSource(raw)
		if src.String() != raw {
			t.Errorf("round trip of %q gave %q", raw, src.String())
		}
		again := ParseSource(src.String())
		if again.String() != raw {
			t.Errorf("second round trip of %q gave %q", raw, again.String())
		}
	}
}

func TestDecodeUTF8(t *testing.T) {
	line := "PRIVMSG #chan :héllo wörld"
	if got := Decode([]byte(line)); got != line {
		t.Errorf("valid UTF-8 should pass through, got %q", got)
	}
}

func TestDecodeLatinFallback(t *testing.T) {
	// 0xE9 is é in Windows-1252 but invalid as a standalone UTF-8 byte.
	raw := []byte("caf\xe9 time")
	got := Decode(raw)
	if got != "café time" {
		t.Errorf("expected Windows-1252 fallback, got %q", got)
	}
}

func TestDecodeMixedEncodings(t *testing.T) {
	// One UTF-8 word and one Windows-1252 word on the same line.
	raw := append([]byte("héllo "), []byte("caf\xe9")...)
	got := Decode(raw)
	if !strings.Contains(got, "héllo") || !strings.Contains(got, "café") {
		t.Errorf("mixed-encoding line decoded badly: %q", got)
	}
}
