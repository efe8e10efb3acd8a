package modules

import (
	"strconv"
	"strings"

	"github.com/modnex/modnex/internal/bot"
	"github.com/modnex/modnex/internal/irc"
)

// Admin returns the built-in administration module: module management,
// command help, and the audit trail. Pair it with Bot.Authorize so not
// everyone on the network can unload your modules.
func Admin() *bot.Module {
	m := bot.NewModule("Admin")

	m.Command(&bot.Command{
		Name: "module list",
		Help: "List loaded and available modules.",
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			b := m.Bot()
			lines := []string{"Loaded: " + strings.Join(b.Modules(), ", ")}
			if avail := b.Available(); len(avail) > 0 {
				lines = append(lines, "Available: "+strings.Join(avail, ", "))
			}
			return lines, nil
		},
	})

	m.Command(&bot.Command{
		Name:   "module load",
		Help:   "Load a module from the catalog.",
		Params: []bot.Param{{Name: "name"}},
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			name := args.String("name")
			if err := m.Bot().Load(name); err != nil {
				return nil, bot.Abortf("%v", err)
			}
			return []string{"Loaded " + name + "."}, nil
		},
	})

	m.Command(&bot.Command{
		Name:   "module unload",
		Help:   "Unload a module.",
		Params: []bot.Param{{Name: "name"}},
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			name := args.String("name")
			if err := m.Bot().Unregister(name); err != nil {
				return nil, bot.Abortf("%v", err)
			}
			return []string{"Unloaded " + name + "."}, nil
		},
	})

	m.Command(&bot.Command{
		Name: "module reload",
		Help: "Reload a module from its source.\n" +
			"Module state is carried over; a failed reload keeps the running version.",
		Params: []bot.Param{{Name: "name"}},
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			name := args.String("name")
			if err := m.Bot().Reload(name); err != nil {
				return nil, bot.Abortf("%v", err)
			}
			return []string{"Reloaded " + name + "."}, nil
		},
	})

	m.Command(&bot.Command{
		Name:  "help",
		Help:  "List all commands, or show the usage of one command.",
		Extra: true,
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			b := m.Bot()
			if len(args.Rest) == 0 {
				lines := []string{"Available commands:"}
				for _, name := range b.Commands() {
					line := name
					if cmd := b.FindCommand(name); cmd != nil && cmd.ShortHelp() != "" {
						line += " -- " + cmd.ShortHelp()
					}
					lines = append(lines, "  "+line)
				}
				return lines, nil
			}
			cmd, leftover := b.ResolveCommand(args.Rest)
			if cmd == nil || len(leftover) > 0 {
				return nil, bot.Abortf("Unknown command: %s", strings.Join(args.Rest, " "))
			}
			lines := []string{cmd.Usage()}
			if cmd.ShortHelp() != "" {
				lines = append(lines, cmd.ShortHelp())
			}
			if cmd.LongHelp() != "" {
				lines = append(lines, cmd.LongHelp())
			}
			return lines, nil
		},
	})

	m.Command(&bot.Command{
		Name:   "stats",
		Help:   "Show the most recent command invocations.",
		Params: []bot.Param{{Name: "count", Default: "10"}},
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			n, err := strconv.Atoi(args.String("count"))
			if err != nil || n < 1 {
				return nil, bot.Abortf("count must be a positive number")
			}
			entries := m.Bot().Stats(n)
			if len(entries) == 0 {
				return []string{"No commands recorded."}, nil
			}
			return entries, nil
		},
	})

	m.Command(&bot.Command{
		Name:  "die",
		Help:  "Disconnect and shut down.",
		Extra: true,
		Handler: func(src *irc.Source, channel string, args *bot.Args) ([]string, error) {
			reason := strings.Join(args.Rest, " ")
			if reason == "" {
				reason = "Shutting down"
			}
			b := m.Bot()
			b.Send("QUIT :" + reason)
			b.Stop(true)
			return nil, nil
		},
	})

	return m
}
