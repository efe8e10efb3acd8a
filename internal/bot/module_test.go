package bot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnex/modnex/internal/irc"
)

// counterSource builds a module whose count survives reloads through
// the state handoff, while the generation number shows which build is
// answering.
func counterSource(builds *int) Source {
	return SourceFunc(func() (*Module, error) {
		*builds++
		gen := *builds
		count := 0
		m := NewModule("Counter")
		m.OnInit = func(state any) {
			if prev, ok := state.(int); ok {
				count = prev
			}
		}
		m.OnReload = func() any { return count }
		m.Command(&Command{
			Name: "count",
			Handler: func(src *irc.Source, channel string, args *Args) ([]string, error) {
				count++
				return []string{fmt.Sprintf("gen %d count %d", gen, count)}, nil
			},
		})
		return m, nil
	})
}

func TestModuleReloadCarriesState(t *testing.T) {
	b := newTestBot()
	builds := 0
	b.Provide("Counter", counterSource(&builds))
	require.NoError(t, b.Load("Counter"))

	b.feed(":alice!al@host PRIVMSG Bob :count")
	b.feed(":alice!al@host PRIVMSG Bob :count")
	assert.Equal(t, []string{
		"NOTICE alice :gen 1 count 1\r\n",
		"NOTICE alice :gen 1 count 2\r\n",
	}, sentLines(b))

	require.NoError(t, b.Reload("Counter"))
	assert.Equal(t, 2, builds)
	assert.Equal(t, []string{"Counter"}, b.Modules())

	b.feed(":alice!al@host PRIVMSG Bob :count")
	assert.Equal(t, []string{"NOTICE alice :gen 2 count 3\r\n"}, sentLines(b))
}

func TestModuleReloadFailureKeepsOriginal(t *testing.T) {
	b := newTestBot()
	broken := false
	src := SourceFunc(func() (*Module, error) {
		if broken {
			return nil, errors.New("syntax error")
		}
		m := NewModule("Flaky")
		m.Command(&Command{
			Name: "still here",
			Handler: func(src *irc.Source, channel string, args *Args) ([]string, error) {
				return []string{"yes"}, nil
			},
		})
		return m, nil
	})
	b.Provide("Flaky", src)
	require.NoError(t, b.Load("Flaky"))

	broken = true
	err := b.Reload("Flaky")
	require.Error(t, err)

	// The running instance is untouched.
	assert.Equal(t, []string{"Flaky"}, b.Modules())
	b.feed(":alice!al@host PRIVMSG Bob :still here")
	assert.Equal(t, []string{"NOTICE alice :yes\r\n"}, sentLines(b))
}

func TestModuleReloadNeedsSource(t *testing.T) {
	b := newTestBot()
	require.NoError(t, b.Register(echoModule()))
	assert.Error(t, b.Reload("Echo"))
	assert.ErrorIs(t, b.Reload("Ghost"), ErrModuleNotLoaded)
}

func TestModuleUnloadCancelsTimers(t *testing.T) {
	b := newTestBot()
	m := echoModule()
	require.NoError(t, b.Register(m))

	h := m.After(time.Hour, func() { t.Error("cancelled timer fired") })
	require.NoError(t, b.Unregister("Echo"))
	assert.True(t, h.stopped.Load())
}

func TestBotCatalog(t *testing.T) {
	b := newTestBot()
	builds := 0
	b.Provide("Counter", counterSource(&builds))
	b.Provide("Another", SourceFunc(func() (*Module, error) {
		return NewModule("Another"), nil
	}))
	assert.Equal(t, []string{"Another", "Counter"}, b.Available())

	assert.ErrorIs(t, b.Load("Missing"), ErrUnknownModule)
	require.NoError(t, b.Load("Counter"))
	assert.ErrorIs(t, b.Load("Counter"), ErrModuleLoaded)

	// Unloading keeps the catalog entry, so it can come right back.
	require.NoError(t, b.Unregister("Counter"))
	require.NoError(t, b.Load("Counter"))
	assert.Equal(t, 2, builds)
}

func TestModuleInitStateNilOnFirstLoad(t *testing.T) {
	b := newTestBot()
	var got any = "untouched"
	m := NewModule("Fresh")
	m.OnInit = func(state any) { got = state }
	require.NoError(t, b.Register(m))
	assert.Nil(t, got)
}
