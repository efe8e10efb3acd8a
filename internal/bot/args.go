package bot

import (
	"fmt"
	"strings"
)

// Abort cancels a command invocation and carries the text reported back to
// the invoker. Argument binding failures and handler-level cancellations
// both use it; anything else returned by a handler is treated as an
// internal error and never shown to the user.
type Abort struct {
	Reason string
}

func (a *Abort) Error() string { return a.Reason }

// Abortf builds an Abort from a format string.
func Abortf(format string, args ...any) error {
	return &Abort{Reason: fmt.Sprintf(format, args...)}
}

// Args holds the values bound for one command invocation.
type Args struct {
	values map[string]any

	// Rest holds surplus tokens for commands declared with Extra.
	Rest []string
}

// String returns the value bound to a string parameter.
func (a *Args) String(name string) string {
	v, _ := a.values[name].(string)
	return v
}

// Bool returns the value bound to a switch parameter.
func (a *Args) Bool(name string) bool {
	v, _ := a.values[name].(bool)
	return v
}

type argOption struct {
	name    string
	alias   string // short form like "-f", empty when the letter is taken
	boolean bool
	defStr  string
	defBool bool
}

// argParser binds flat token lists against a command's declared parameter
// shape. It is built once, at command registration.
type argParser struct {
	prog        string
	description string
	options     []*argOption
	byFlag      map[string]*argOption
	positionals []string
	greedy      bool
	greedyArg   string // last positional; absorbs leftovers when greedy
	extra       bool
}

func newArgParser(cmd *Command) (*argParser, error) {
	if cmd.Greedy && cmd.Extra {
		return nil, fmt.Errorf("command %s: a greedy argument cannot be combined with extra arguments", cmd.Name)
	}
	p := &argParser{
		prog:        strings.Join(strings.Fields(cmd.Name), " "),
		description: strings.ReplaceAll(strings.TrimSpace(cmd.Help), "\n", " "),
		byFlag:      make(map[string]*argOption),
		greedy:      cmd.Greedy,
		extra:       cmd.Extra,
	}

	// A short alias is granted only when no other parameter, positional
	// or not, starts with the same letter, and never for 'h'.
	letters := make(map[byte]int)
	seen := make(map[string]bool)
	for _, param := range cmd.Params {
		if param.Name == "" {
			return nil, fmt.Errorf("command %s: parameter with empty name", cmd.Name)
		}
		if seen[param.Name] {
			return nil, fmt.Errorf("command %s: duplicate parameter %s", cmd.Name, param.Name)
		}
		seen[param.Name] = true
		letters[param.Name[0]]++
	}

	for _, param := range cmd.Params {
		switch def := param.Default.(type) {
		case nil:
			p.positionals = append(p.positionals, param.Name)
		case bool:
			p.addOption(&argOption{name: param.Name, boolean: true, defBool: def}, letters)
		case string:
			p.addOption(&argOption{name: param.Name, defStr: def}, letters)
		default:
			return nil, fmt.Errorf("command %s: unsupported default %T for parameter %s", cmd.Name, def, param.Name)
		}
	}
	if cmd.Greedy {
		if len(p.positionals) == 0 {
			return nil, fmt.Errorf("command %s: a greedy command needs a positional parameter", cmd.Name)
		}
		p.greedyArg = p.positionals[len(p.positionals)-1]
	}
	return p, nil
}

func (p *argParser) addOption(o *argOption, letters map[byte]int) {
	if c := o.name[0]; c != 'h' && letters[c] == 1 {
		o.alias = "-" + string(c)
		p.byFlag[o.alias] = o
	}
	p.byFlag["--"+o.name] = o
	p.options = append(p.options, o)
}

// parse binds tokens to declared parameters. Failures abort with the
// parser's usage text; the handler is never invoked on a failed bind.
func (p *argParser) parse(tokens []string) (*Args, error) {
	args := &Args{values: make(map[string]any)}
	for _, o := range p.options {
		if o.boolean {
			args.values[o.name] = o.defBool
		} else {
			args.values[o.name] = o.defStr
		}
	}

	var leftover []string
	posIdx := 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "-h" || tok == "--help" {
			return nil, &Abort{Reason: p.help()}
		}
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			flag, inline, hasInline := strings.Cut(tok, "=")
			o := p.byFlag[flag]
			switch {
			case o == nil:
				if p.greedy || p.extra {
					leftover = append(leftover, tok)
					continue
				}
				return nil, p.fail("unrecognized option %s", tok)
			case o.boolean:
				if hasInline {
					return nil, p.fail("option --%s takes no value", o.name)
				}
				args.values[o.name] = !o.defBool
			case hasInline:
				args.values[o.name] = inline
			default:
				if i+1 >= len(tokens) {
					return nil, p.fail("option --%s requires a value", o.name)
				}
				i++
				args.values[o.name] = tokens[i]
			}
			continue
		}
		if posIdx < len(p.positionals) {
			args.values[p.positionals[posIdx]] = tok
			posIdx++
		} else if p.greedy || p.extra {
			leftover = append(leftover, tok)
		} else {
			return nil, p.fail("unrecognized argument %s", tok)
		}
	}
	if posIdx < len(p.positionals) {
		return nil, p.fail("missing argument %s", strings.ToUpper(p.positionals[posIdx]))
	}
	if p.greedy {
		parts := append([]string{args.String(p.greedyArg)}, leftover...)
		args.values[p.greedyArg] = strings.Join(parts, " ")
		leftover = nil
	}
	args.Rest = leftover
	return args, nil
}

func (p *argParser) fail(format string, a ...any) error {
	return &Abort{Reason: p.usage() + "\n" + p.prog + ": " + fmt.Sprintf(format, a...)}
}

func (p *argParser) usage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "usage: %s [-h]", p.prog)
	for _, o := range p.options {
		if o.boolean {
			fmt.Fprintf(&b, " [--%s]", o.name)
		} else {
			fmt.Fprintf(&b, " [--%s %s]", o.name, strings.ToUpper(o.name))
		}
	}
	for _, name := range p.positionals {
		meta := strings.ToUpper(name)
		if p.greedy && name == p.greedyArg {
			meta += "..."
		}
		b.WriteString(" " + meta)
	}
	if p.extra {
		b.WriteString(" ...")
	}
	return b.String()
}

func (p *argParser) help() string {
	lines := []string{p.usage()}
	if p.description != "" {
		lines = append(lines, "", p.description)
	}
	if len(p.options) > 0 {
		lines = append(lines, "", "options:")
		for _, o := range p.options {
			flags := "--" + o.name
			if o.alias != "" {
				flags = o.alias + ", " + flags
			}
			if !o.boolean {
				flags += " " + strings.ToUpper(o.name)
			}
			lines = append(lines, "  "+flags)
		}
	}
	return strings.Join(lines, "\n")
}
