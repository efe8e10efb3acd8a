package bot

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/modnex/modnex/internal/irc"
)

const maxStatEntries = 500

const statTimeFormat = "Mon Jan 02, 2006 at 15:04:05 GMT"

// statsLog is the command audit trail: one line per dispatched command,
// oldest first, capped at maxStatEntries and persisted across restarts.
// Only touched from the dispatch loop, so it needs no locking.
type statsLog struct {
	path    string
	log     *log.Logger
	entries []string
}

func newStatsLog(path string, logger *log.Logger) *statsLog {
	s := &statsLog{path: path, log: logger}
	entries, err := readLines(path)
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load command stats", "path", path, "err", err)
	}
	s.entries = entries
	return s
}

func (s *statsLog) record(src *irc.Source, command string, args []string) {
	invocation := command
	if len(args) > 0 {
		invocation += " " + strings.Join(args, " ")
	}
	entry := fmt.Sprintf("%s: %s -> %s",
		time.Now().UTC().Format(statTimeFormat), src.String(), invocation)
	s.entries = append(s.entries, entry)
	if len(s.entries) > maxStatEntries {
		s.entries = s.entries[len(s.entries)-maxStatEntries:]
	}
	if err := writeLines(s.path, s.entries); err != nil {
		s.log.Warn("could not save command stats", "path", s.path, "err", err)
	}
}

// last returns up to n entries, newest first. n <= 0 means all of them.
func (s *statsLog) last(n int) []string {
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]string, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(file, line); err != nil {
			return err
		}
	}
	return nil
}
