package bot

import (
	"strings"

	"github.com/modnex/modnex/internal/irc"
)

// Param describes one declared command parameter. A nil Default makes it a
// required positional, consumed in declaration order. A bool Default makes
// it an on/off switch whose presence stores the negation of the default. A
// string Default makes it a named option taking one value. Options get a
// --name flag plus a single-letter alias when the letter is free.
type Param struct {
	Name    string
	Default any
}

// HandlerFunc is the signature of a command implementation. Returned lines
// are sent back to the invoker as notices; returning an *Abort cancels the
// command with a user-visible reason.
type HandlerFunc func(src *irc.Source, channel string, args *Args) ([]string, error)

// Command declares a user-invocable multi-word command.
type Command struct {
	// Name is the full multi-word name, e.g. "module reload".
	Name string
	// Help documents the command: the first line is the short help shown
	// in listings, the rest is the long help.
	Help string
	// Greedy makes the last positional parameter absorb all trailing
	// unconsumed tokens as one space-joined string.
	Greedy bool
	// Extra passes surplus tokens to the handler through Args.Rest
	// instead of rejecting them. Mutually exclusive with Greedy.
	Extra   bool
	Params  []Param
	Handler HandlerFunc

	module    *Module
	parser    *argParser
	shortHelp string
	longHelp  string
}

// compile validates the declaration and builds the argument parser. It
// runs at registration time so a bad parameter shape is rejected before
// the command ever becomes reachable.
func (c *Command) compile() error {
	help := strings.TrimSpace(c.Help)
	if short, long, found := strings.Cut(help, "\n"); found {
		c.shortHelp = strings.TrimSpace(short)
		c.longHelp = strings.TrimSpace(long)
	} else {
		c.shortHelp = help
	}
	parser, err := newArgParser(c)
	if err != nil {
		return err
	}
	c.parser = parser
	return nil
}

// Module returns the module owning this command, or nil.
func (c *Command) Module() *Module { return c.module }

// ShortHelp is the first line of the command's help text.
func (c *Command) ShortHelp() string { return c.shortHelp }

// LongHelp is the help text after its first line.
func (c *Command) LongHelp() string { return c.longHelp }

// Usage is the one-line usage string derived from the parameter shape.
func (c *Command) Usage() string { return c.parser.usage() }

// invoke binds tokens against the parameter shape and calls the handler.
// Returned output has embedded newlines split into separate lines.
func (c *Command) invoke(src *irc.Source, channel string, tokens []string) ([]string, error) {
	bound, err := c.parser.parse(tokens)
	if err != nil {
		return nil, err
	}
	out, err := c.Handler(src, channel, bound)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	lines := make([]string, 0, len(out))
	for _, item := range out {
		lines = append(lines, strings.Split(item, "\n")...)
	}
	return lines, nil
}
