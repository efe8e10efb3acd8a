package bot

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/modnex/modnex/internal/irc"
)

// Source builds a fresh instance of a module so the bot can replace a
// running one in place. A reload evaluates the source again; whatever
// the outgoing instance returns from OnReload arrives in the new
// instance's OnInit.
type Source interface {
	Build() (*Module, error)
}

// SourceFunc adapts a plain factory function.
type SourceFunc func() (*Module, error)

func (f SourceFunc) Build() (*Module, error) { return f() }

// EventFunc listens for a broadcast event.
type EventFunc func()

// LineFunc handles one inbound protocol message.
type LineFunc func(msg irc.Message)

// BeforeCommandFunc runs before a command executes. Returning an error
// cancels the invocation; an *Abort reason is reported to the invoker,
// anything else is only logged.
type BeforeCommandFunc func(src *irc.Source, channel string, cmd *Command) error

// Module groups commands, line handlers, and event listeners that load
// and unload as a unit. Declare everything up front, then hand it to
// Bot.Register; declaration methods must not be called on an active
// module.
type Module struct {
	Name string

	// OnInit runs when the module becomes active. state is whatever the
	// replaced instance returned from OnReload, nil on a first load.
	OnInit func(state any)
	// OnReload runs on the outgoing instance during a reload; its
	// return value becomes the replacement's init state.
	OnReload func() any
	// OnUnload runs after the module has been deactivated.
	OnUnload func()

	bot    *Bot
	source Source
	state  any
	active bool
	logger *log.Logger

	commands []*Command
	lines    map[string][]LineFunc
	events   map[string][]EventFunc
	before   []BeforeCommandFunc
	timers   []*Timer
}

func NewModule(name string) *Module {
	return &Module{
		Name:   name,
		lines:  make(map[string][]LineFunc),
		events: make(map[string][]EventFunc),
	}
}

// Command adds cmd to the module. It joins the bot's table when the
// module registers.
func (m *Module) Command(cmd *Command) *Module {
	m.commands = append(m.commands, cmd)
	return m
}

// Handle adds a handler for one inbound protocol command.
func (m *Module) Handle(command string, fn LineFunc) *Module {
	key := strings.ToUpper(command)
	m.lines[key] = append(m.lines[key], fn)
	return m
}

// On adds a listener for a broadcast event.
func (m *Module) On(event string, fn EventFunc) *Module {
	m.events[event] = append(m.events[event], fn)
	return m
}

// BeforeCommand adds a hook that runs before any of this module's
// commands execute.
func (m *Module) BeforeCommand(fn BeforeCommandFunc) *Module {
	m.before = append(m.before, fn)
	return m
}

// Bot is the owning bot, nil until the module registers.
func (m *Module) Bot() *Bot { return m.bot }

// Log is the module's prefixed logger, available once registered.
func (m *Module) Log() *log.Logger { return m.logger }

// After schedules fn once on the dispatch loop. Unloading the module
// cancels anything still pending.
func (m *Module) After(d time.Duration, fn func()) *Timer {
	t := m.bot.conn.After(d, fn)
	m.timers = append(m.timers, t)
	return t
}

func (m *Module) emit(event string) {
	for _, fn := range append([]EventFunc(nil), m.events[event]...) {
		fn()
	}
}
