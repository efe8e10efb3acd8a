package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/modnex/modnex/internal/irc"
)

// scriptSymbols is the API visible to script modules. A script imports
// "modnex/bot" (and "modnex/irc" for handler signatures) and defines
// `func Setup() *bot.Module`.
func scriptSymbols() interp.Exports {
	return interp.Exports{
		"modnex/bot/bot": {
			"NewModule": reflect.ValueOf(NewModule),
			"Abortf":    reflect.ValueOf(Abortf),

			"Abort":      reflect.ValueOf((*Abort)(nil)),
			"Args":       reflect.ValueOf((*Args)(nil)),
			"Bot":        reflect.ValueOf((*Bot)(nil)),
			"Command":    reflect.ValueOf((*Command)(nil)),
			"Module":     reflect.ValueOf((*Module)(nil)),
			"Param":      reflect.ValueOf((*Param)(nil)),
			"Timer":      reflect.ValueOf((*Timer)(nil)),
			"SourceFunc": reflect.ValueOf((*SourceFunc)(nil)),

			"EventConnect":    reflect.ValueOf(EventConnect),
			"EventDisconnect": reflect.ValueOf(EventDisconnect),
			"EventReady":      reflect.ValueOf(EventReady),
			"EventTerminate":  reflect.ValueOf(EventTerminate),
		},
		"modnex/irc/irc": {
			"Parse":       reflect.ValueOf(irc.Parse),
			"ParseSource": reflect.ValueOf(irc.ParseSource),
			"Decode":      reflect.ValueOf(irc.Decode),

			"Message": reflect.ValueOf((*irc.Message)(nil)),
			"Source":  reflect.ValueOf((*irc.Source)(nil)),
		},
	}
}

// ScriptSource evaluates a Go source file with yaegi. Every Build reads
// the file again, which is what makes editing a loaded script and
// reloading it pick up the changes.
type ScriptSource struct {
	Path string
}

func (s ScriptSource) Build() (*Module, error) {
	src, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", s.Path, err)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("script %s: %w", s.Path, err)
	}
	if err := i.Use(scriptSymbols()); err != nil {
		return nil, fmt.Errorf("script %s: %w", s.Path, err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("script %s: %w", s.Path, err)
	}
	v, err := i.Eval("main.Setup")
	if err != nil {
		return nil, fmt.Errorf("script %s: missing Setup: %w", s.Path, err)
	}
	setup, ok := v.Interface().(func() *Module)
	if !ok {
		return nil, fmt.Errorf("script %s: Setup must be func() *bot.Module, got %T", s.Path, v.Interface())
	}
	m := setup()
	if m == nil {
		return nil, fmt.Errorf("script %s: Setup returned nil", s.Path)
	}
	return m, nil
}

// LoadScript evaluates path and registers the resulting module with the
// file as its reload source. A module with no name is named after the
// file.
func (b *Bot) LoadScript(path string) (*Module, error) {
	src := ScriptSource{Path: path}
	m, err := src.Build()
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), ".go")
	}
	m.source = src
	if err := b.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}
