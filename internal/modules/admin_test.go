package modules

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnex/modnex/internal/bot"
	"github.com/modnex/modnex/internal/config"
	"github.com/modnex/modnex/internal/irc"
)

// ircServer plays the network side: it accepts the bot's connection,
// answers registration, and lets tests exchange raw lines.
type ircServer struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
}

func (s *ircServer) send(line string) {
	s.t.Helper()
	_, err := s.conn.Write([]byte(line + "\r\n"))
	require.NoError(s.t, err)
}

func (s *ircServer) read() string {
	s.t.Helper()
	line, err := s.rd.ReadString('\n')
	require.NoError(s.t, err)
	return strings.TrimRight(line, "\r\n")
}

func (s *ircServer) expect(want string) {
	s.t.Helper()
	require.Equal(s.t, want, s.read())
}

// command sends a direct message from alice and returns the notices
// that come back, stopping after the reply burst ends.
func (s *ircServer) command(text string, replies int) []string {
	s.t.Helper()
	s.send(":alice!al@host PRIVMSG Bob :" + text)
	var out []string
	for i := 0; i < replies; i++ {
		line := s.read()
		require.True(s.t, strings.HasPrefix(line, "NOTICE alice :"), "unexpected line %q", line)
		out = append(out, strings.TrimPrefix(line, "NOTICE alice :"))
	}
	return out
}

func startTestBot(t *testing.T, setup func(b *bot.Bot)) (*bot.Bot, *ircServer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cfg := config.Default()
	cfg.Server = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Nick = "Bob"
	cfg.Trigger = "!"
	cfg.DataDir = t.TempDir()

	b := bot.New(cfg, log.New(io.Discard))
	require.NoError(t, b.Register(Admin()))
	if setup != nil {
		setup(b)
	}
	go b.Run()
	t.Cleanup(func() { b.Stop(false) })

	conn, err := ln.Accept()
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { conn.Close() })

	srv := &ircServer{t: t, conn: conn, rd: bufio.NewReader(conn)}
	srv.expect("NICK Bob")
	srv.expect("USER modnex 0 * :modnex")
	srv.send(":irc.test 001 Bob :Welcome to the test net")
	return b, srv
}

func TestAdminHelpListsCommands(t *testing.T) {
	_, srv := startTestBot(t, nil)

	// Admin registers seven commands; one line each plus the header.
	lines := srv.command("help", 8)
	assert.Equal(t, "Available commands:", lines[0])
	assert.Contains(t, lines[1], "module list -- List loaded and available modules.")
	joined := strings.Join(lines, "\n")
	for _, name := range []string{"module load", "module unload", "module reload", "help", "stats", "die"} {
		assert.Contains(t, joined, name)
	}
}

func TestAdminHelpForOneCommand(t *testing.T) {
	_, srv := startTestBot(t, nil)

	lines := srv.command("help module reload", 3)
	assert.Equal(t, "usage: module reload [-h] NAME", lines[0])
	assert.Equal(t, "Reload a module from its source.", lines[1])
	assert.Contains(t, lines[2], "failed reload keeps the running version")

	lines = srv.command("help no such thing", 1)
	assert.Equal(t, "Unknown command: no such thing", lines[0])
}

func TestAdminModuleLifecycle(t *testing.T) {
	src := bot.SourceFunc(func() (*bot.Module, error) {
		m := bot.NewModule("Counter")
		n := 0
		m.OnInit = func(state any) {
			if prev, ok := state.(int); ok {
				n = prev
			}
		}
		m.OnReload = func() any { return n }
		m.Command(&bot.Command{
			Name: "count",
			Handler: func(s *irc.Source, channel string, args *bot.Args) ([]string, error) {
				n++
				return []string{fmt.Sprintf("count %d", n)}, nil
			},
		})
		return m, nil
	})
	_, srv := startTestBot(t, func(b *bot.Bot) {
		b.Provide("Counter", src)
	})

	lines := srv.command("module list", 2)
	assert.Equal(t, "Loaded: Admin", lines[0])
	assert.Equal(t, "Available: Counter", lines[1])

	assert.Equal(t, []string{"Loaded Counter."}, srv.command("module load Counter", 1))
	assert.Equal(t, []string{"count 1"}, srv.command("count", 1))
	assert.Equal(t, []string{"Reloaded Counter."}, srv.command("module reload Counter", 1))
	assert.Equal(t, []string{"count 2"}, srv.command("count", 1))
	assert.Equal(t, []string{"Unloaded Counter."}, srv.command("module unload Counter", 1))
	assert.Equal(t, []string{"Unknown command: count"}, srv.command("count", 1))

	lines = srv.command("module reload Admin", 1)
	assert.Contains(t, lines[0], "no reload source")
}

func TestAdminStats(t *testing.T) {
	_, srv := startTestBot(t, nil)

	assert.Equal(t, []string{"No commands recorded."}, srv.command("stats", 1))

	// The first stats call above was recorded after it replied, so the
	// newest entry now is "module list", then that stats call.
	srv.command("module list", 2)
	lines := srv.command("stats", 2)
	assert.Contains(t, lines[0], "alice!al@host -> module list")
	assert.Contains(t, lines[1], "alice!al@host -> stats")

	lines = srv.command("stats --count=nope", 1)
	assert.Equal(t, "count must be a positive number", lines[0])
}

func TestAdminDie(t *testing.T) {
	_, srv := startTestBot(t, nil)

	srv.send(":alice!al@host PRIVMSG Bob :die calling it a day")
	srv.expect("QUIT :calling it a day")
	_, err := srv.rd.ReadString('\n')
	assert.Error(t, err, "connection should close after the quit")
}
