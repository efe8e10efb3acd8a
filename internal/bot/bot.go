package bot

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ergochat/irc-go/ircfmt"
	"github.com/ergochat/irc-go/ircutils"

	"github.com/modnex/modnex/internal/config"
	"github.com/modnex/modnex/internal/irc"
)

// Events broadcast to global listeners and every loaded module, in load
// order. Module lifecycle (init, reload, unload) goes through the typed
// hooks on Module instead.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventReady      = "ready"
	EventTerminate  = "terminate"
)

var (
	ErrModuleLoaded    = errors.New("module already loaded")
	ErrModuleNotLoaded = errors.New("module not loaded")
	ErrUnknownModule   = errors.New("unknown module")
)

// maxNoticeLen keeps reply lines well under the 512-byte protocol line
// limit, leaving room for the NOTICE envelope.
const maxNoticeLen = 400

// Bot ties the connection engine to the command table and the module
// bus. Registry mutations and dispatch all happen on the engine's
// dispatch loop; only the nick/server/ready snapshot is shared with
// other goroutines.
type Bot struct {
	// Trigger prefixes channel commands and is stripped before lookup.
	// Empty disables channel commands; direct messages never need it.
	Trigger string

	// Authorize decides whether src may run cmd. Nil allows everyone.
	Authorize func(src *irc.Source, cmd *Command) bool

	conn *Conn
	log  *log.Logger

	commands *commandStorage
	handlers map[string][]lineHandler
	events   map[string][]EventFunc
	before   []BeforeCommandFunc
	modules  map[string]*Module
	order    []string
	catalog  map[string]Source
	stats    *statsLog

	mu     sync.RWMutex
	nick   string
	server string
	ready  bool
}

type lineHandler struct {
	owner *Module // nil for the bot's own handlers
	fn    LineFunc
}

// New builds a bot from cfg. Run starts it.
func New(cfg *config.Config, logger *log.Logger) *Bot {
	conn := newConn(logger)
	conn.Server = cfg.Server
	conn.Port = cfg.Port
	conn.Bind = cfg.Bind
	conn.Pass = cfg.ServerPass
	conn.Nick = cfg.Nick
	conn.Username = cfg.Username
	conn.Realname = cfg.Realname
	conn.Debug = cfg.Debug
	if cfg.ReconnectDelay > 0 {
		conn.ReconnectDelay = time.Duration(cfg.ReconnectDelay) * time.Second
	}

	b := &Bot{
		Trigger:  cfg.Trigger,
		conn:     conn,
		log:      logger,
		commands: newCommandStorage(),
		handlers: make(map[string][]lineHandler),
		events:   make(map[string][]EventFunc),
		modules:  make(map[string]*Module),
		catalog:  make(map[string]Source),
		nick:     cfg.Nick,
	}
	if cfg.DataDir != "" {
		b.stats = newStatsLog(filepath.Join(cfg.DataDir, "stats.txt"), logger)
	}

	conn.onLine = b.dispatch
	conn.onConnect = func() { b.emit(EventConnect) }
	conn.onDisconnect = b.disconnected
	conn.onTerminate = func() { b.emit(EventTerminate) }

	b.Handle("PING", b.handlePing)
	b.Handle("001", b.handleWelcome)
	b.Handle("ERROR", b.handleError)
	b.Handle("PRIVMSG", b.handlePrivmsg)
	return b
}

// Run connects and blocks until the bot stops.
func (b *Bot) Run() { b.conn.Run() }

// Stop ends the bot. Graceful flushes queued output first.
func (b *Bot) Stop(graceful bool) { b.conn.Stop(graceful) }

// Send queues one raw protocol line.
func (b *Bot) Send(line string) { b.conn.Send(line) }

// Do runs fn on the dispatch loop.
func (b *Bot) Do(fn func()) { b.conn.Do(fn) }

// After schedules fn once on the dispatch loop.
func (b *Bot) After(d time.Duration, fn func()) *Timer { return b.conn.After(d, fn) }

// Nick is the nick currently in effect, as confirmed by the server.
func (b *Bot) Nick() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nick
}

// Server is the name the server introduced itself with, empty before
// registration completes.
func (b *Bot) Server() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.server
}

// Ready reports whether registration with the server has completed.
func (b *Bot) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Handle registers a bot-level handler for one protocol command.
func (b *Bot) Handle(command string, fn LineFunc) {
	key := strings.ToUpper(command)
	b.handlers[key] = append(b.handlers[key], lineHandler{fn: fn})
}

// On registers a global listener for a broadcast event.
func (b *Bot) On(event string, fn EventFunc) {
	b.events[event] = append(b.events[event], fn)
}

// BeforeCommand registers a hook that runs before every command.
func (b *Bot) BeforeCommand(fn BeforeCommandFunc) {
	b.before = append(b.before, fn)
}

// Commands returns registered command names in registration order.
func (b *Bot) Commands() []string { return b.commands.list() }

// FindCommand returns the command registered under the full name.
func (b *Bot) FindCommand(name string) *Command { return b.commands.get(name) }

// ResolveCommand finds the longest registered prefix of tokens and the
// tokens left over.
func (b *Bot) ResolveCommand(tokens []string) (*Command, []string) {
	return b.commands.lookup(tokens)
}

// Modules returns loaded module names in load order.
func (b *Bot) Modules() []string { return append([]string(nil), b.order...) }

// Provide adds a loadable module source to the catalog.
func (b *Bot) Provide(name string, src Source) { b.catalog[name] = src }

// Available returns the catalog's module names, sorted.
func (b *Bot) Available() []string {
	names := make([]string, 0, len(b.catalog))
	for name := range b.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns up to n audit entries, newest first.
func (b *Bot) Stats(n int) []string {
	if b.stats == nil {
		return nil
	}
	return b.stats.last(n)
}

// Load builds the cataloged module and registers it.
func (b *Bot) Load(name string) error {
	src, ok := b.catalog[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownModule)
	}
	if _, loaded := b.modules[name]; loaded {
		return fmt.Errorf("%s: %w", name, ErrModuleLoaded)
	}
	m, err := src.Build()
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	m.source = src
	return b.Register(m)
}

// Register activates m: its commands join the table, its handlers and
// listeners start receiving traffic, and OnInit runs. Every check
// happens before the first mutation, so a failed registration leaves no
// residue.
func (b *Bot) Register(m *Module) error {
	if m.Name == "" {
		return errors.New("module has no name")
	}
	if _, ok := b.modules[m.Name]; ok {
		return fmt.Errorf("%s: %w", m.Name, ErrModuleLoaded)
	}
	seen := make(map[string]bool)
	for _, cmd := range m.commands {
		key := commandKey(cmd.Name)
		if seen[key] || b.commands.has(cmd.Name) {
			return fmt.Errorf("%s: %w", cmd.Name, ErrDuplicateCommand)
		}
		seen[key] = true
		if err := cmd.compile(); err != nil {
			return err
		}
	}

	for _, cmd := range m.commands {
		cmd.module = m
		b.commands.set(cmd.Name, cmd)
	}
	for command, fns := range m.lines {
		for _, fn := range fns {
			b.handlers[command] = append(b.handlers[command], lineHandler{owner: m, fn: fn})
		}
	}
	m.bot = b
	m.active = true
	m.logger = b.log.WithPrefix(m.Name)
	b.modules[m.Name] = m
	b.order = append(b.order, m.Name)
	b.log.Info("module loaded", "module", m.Name)

	state := m.state
	m.state = nil
	if m.OnInit != nil {
		m.OnInit(state)
	}
	if b.Ready() {
		m.emit(EventReady)
	}
	return nil
}

// Unregister deactivates the named module, removing its commands, line
// handlers, and pending timers, then runs OnUnload.
func (b *Bot) Unregister(name string) error {
	m, ok := b.modules[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrModuleNotLoaded)
	}
	for _, cmd := range m.commands {
		b.commands.remove(cmd.Name)
		cmd.module = nil
	}
	for command, hs := range b.handlers {
		// Fresh slices: dispatch may be iterating a snapshot of the old
		// one right now.
		var kept []lineHandler
		for _, h := range hs {
			if h.owner != m {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(b.handlers, command)
		} else {
			b.handlers[command] = kept
		}
	}
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	delete(b.modules, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	m.active = false
	m.bot = nil
	b.log.Info("module unloaded", "module", name)
	if m.OnUnload != nil {
		m.OnUnload()
	}
	return nil
}

// Reload replaces the named module with a freshly built instance from
// its source. The replacement is built and vetted first, so any failure
// leaves the running instance untouched. State returned by the old
// instance's OnReload arrives in the new one's OnInit.
func (b *Bot) Reload(name string) error {
	old, ok := b.modules[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrModuleNotLoaded)
	}
	if old.source == nil {
		return fmt.Errorf("module %s has no reload source", name)
	}
	fresh, err := old.source.Build()
	if err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	if fresh.Name == "" {
		fresh.Name = name
	}
	if fresh.Name != name {
		return fmt.Errorf("reload %s: source built module %q", name, fresh.Name)
	}
	seen := make(map[string]bool)
	for _, cmd := range fresh.commands {
		key := commandKey(cmd.Name)
		if owner := b.commands.get(cmd.Name); seen[key] || (owner != nil && owner.module != old) {
			return fmt.Errorf("reload %s: %s: %w", name, cmd.Name, ErrDuplicateCommand)
		}
		seen[key] = true
		if err := cmd.compile(); err != nil {
			return fmt.Errorf("reload %s: %w", name, err)
		}
	}

	fresh.source = old.source
	if old.OnReload != nil {
		fresh.state = old.OnReload()
	}
	if err := b.Unregister(name); err != nil {
		return err
	}
	b.log.Info("module reloaded", "module", name)
	return b.Register(fresh)
}

// dispatch fans one inbound message out to the handlers registered for
// its command. It iterates a snapshot, so a handler may unload its own
// module mid-flight; handlers of a module unloaded earlier in the same
// message are skipped.
func (b *Bot) dispatch(msg irc.Message) {
	hs := b.handlers[msg.Command]
	if len(hs) == 0 {
		return
	}
	for _, h := range append([]lineHandler(nil), hs...) {
		if h.owner != nil && !h.owner.active {
			continue
		}
		h.fn(msg)
	}
}

func (b *Bot) emit(event string) {
	for _, fn := range append([]EventFunc(nil), b.events[event]...) {
		fn()
	}
	for _, name := range append([]string(nil), b.order...) {
		if m := b.modules[name]; m != nil && m.active {
			m.emit(event)
		}
	}
}

func (b *Bot) handlePing(msg irc.Message) {
	b.conn.Send("PONG :" + msg.Param(0))
}

func (b *Bot) handleWelcome(msg irc.Message) {
	b.mu.Lock()
	b.nick = msg.Param(0)
	b.server = msg.Source.Nick
	already := b.ready
	b.ready = true
	b.mu.Unlock()
	if already {
		return
	}
	b.log.Info("registered with server", "nick", msg.Param(0), "server", msg.Source.Nick)
	b.emit(EventReady)
}

func (b *Bot) handleError(msg irc.Message) {
	b.log.Warn("server error", "text", ircfmt.Strip(msg.Param(0)))
	b.conn.Drop()
}

func (b *Bot) disconnected() {
	b.mu.Lock()
	b.ready = false
	b.server = ""
	b.mu.Unlock()
	b.emit(EventDisconnect)
}

// handlePrivmsg turns an inbound message into a command invocation. A
// message addressed to our own nick is a direct message: no trigger, no
// channel context. Anything else needs the trigger prefix.
func (b *Bot) handlePrivmsg(msg irc.Message) {
	if len(msg.Params) < 2 || !msg.Source.Valid() {
		return
	}
	target, text := msg.Params[0], msg.Params[1]
	var channel string
	if !strings.EqualFold(target, b.Nick()) {
		if b.Trigger == "" || !strings.HasPrefix(text, b.Trigger) {
			return
		}
		text = text[len(b.Trigger):]
		channel = target
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}
	cmd, rest := b.commands.lookup(tokens)
	if cmd == nil {
		b.notice(msg.Source.Nick, "Unknown command: "+strings.Join(tokens, " "))
		return
	}
	b.runCommand(&msg.Source, channel, cmd, rest)
}

func (b *Bot) runCommand(src *irc.Source, channel string, cmd *Command, tokens []string) {
	hooks := append([]BeforeCommandFunc(nil), b.before...)
	if cmd.module != nil {
		hooks = append(hooks, cmd.module.before...)
	}
	for _, hook := range hooks {
		if err := hook(src, channel, cmd); err != nil {
			b.reportFailure(src, cmd, err)
			return
		}
	}
	if b.Authorize != nil && !b.Authorize(src, cmd) {
		b.notice(src.Nick, "Access denied.")
		return
	}

	out, err := b.safeInvoke(cmd, src, channel, tokens)
	if err != nil {
		b.reportFailure(src, cmd, err)
		return
	}
	if b.stats != nil {
		b.stats.record(src, cmd.Name, tokens)
	}
	b.log.Info("command", "source", src.String(), "command", cmd.Name,
		"args", ircfmt.Strip(strings.Join(tokens, " ")))
	b.noticeLines(src.Nick, out)
}

// safeInvoke confines a panicking handler to its own invocation.
func (b *Bot) safeInvoke(cmd *Command, src *irc.Source, channel string, tokens []string) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("command panicked", "command", cmd.Name, "panic", r)
			out, err = nil, nil
		}
	}()
	return cmd.invoke(src, channel, tokens)
}

// reportFailure sends abort reasons back to the invoker; anything else
// stays in the log.
func (b *Bot) reportFailure(src *irc.Source, cmd *Command, err error) {
	var abort *Abort
	if errors.As(err, &abort) {
		b.noticeLines(src.Nick, strings.Split(abort.Reason, "\n"))
		return
	}
	b.log.Error("command failed", "command", cmd.Name, "err", err)
}

func (b *Bot) notice(nick, text string) {
	b.noticeLines(nick, []string{text})
}

// noticeLines replies to the invoker. Each line is scrubbed of bytes
// that would break protocol framing and truncated; an empty line still
// has to carry one character to be a valid message.
func (b *Bot) noticeLines(nick string, lines []string) {
	for _, line := range lines {
		line = ircutils.SanitizeText(line, maxNoticeLen)
		if line == "" {
			line = " "
		}
		b.conn.Send("NOTICE " + nick + " :" + line)
	}
}
