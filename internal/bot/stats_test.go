package bot

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/modnex/modnex/internal/irc"
)

func TestStatsLogRecordAndCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.txt")
	logger := log.New(io.Discard)
	s := newStatsLog(path, logger)

	src := irc.ParseSource("alice!al@host")
	for i := 0; i < maxStatEntries+25; i++ {
		s.record(&src, "ping", []string{fmt.Sprint(i)})
	}
	assert.Len(t, s.entries, maxStatEntries)

	newest := s.last(2)
	assert.Contains(t, newest[0], "alice!al@host -> ping 524")
	assert.Contains(t, newest[1], "alice!al@host -> ping 523")

	// Reopening reads the persisted entries back.
	reopened := newStatsLog(path, logger)
	assert.Equal(t, s.entries, reopened.entries)

	assert.Len(t, reopened.last(0), maxStatEntries)
	assert.Len(t, reopened.last(10000), maxStatEntries)
}

func TestStatsLogNoArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.txt")
	s := newStatsLog(path, log.New(io.Discard))
	src := irc.ParseSource("alice!al@host")
	s.record(&src, "module list", nil)
	assert.Contains(t, s.last(1)[0], "alice!al@host -> module list")
}
