package bot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/modnex/modnex/internal/irc"
)

// Conn drives one client connection: dialing, line framing, the ordered
// write queue, and reconnection. Run owns a single dispatch goroutine;
// all callbacks and scheduled functions execute on it, so callers never
// need their own locking. The reader and writer goroutines only move
// bytes and report results back to the loop.
type Conn struct {
	Server string
	Port   int
	// Bind is an optional local host to dial from. Candidate local and
	// remote addresses are paired by IP family.
	Bind     string
	Pass     string
	Nick     string
	Username string
	Realname string

	// ReconnectDelay is the pause between losing the connection and the
	// next dial attempt.
	ReconnectDelay time.Duration

	// Debug echoes raw lines to stdout when it is a terminal.
	Debug bool

	onLine       func(msg irc.Message)
	onConnect    func()
	onDisconnect func()
	onTerminate  func()

	log *log.Logger

	// dial replaces the whole resolve-and-connect step in tests.
	dial func() (net.Conn, error)

	mu       sync.Mutex
	writeq   []string
	inFlight bool
	stopping bool

	wake    chan struct{}
	calls   chan func()
	halt    chan struct{}
	haltOne sync.Once
	done    chan struct{}

	// retry arms the next dial attempt. Owned by the dispatch loop.
	retry *time.Timer

	echoTTY bool

	cur *session
}

// session bundles the goroutines and channels of one socket lifetime.
// Teardown replaces the whole thing, so results from a dead connection
// can never reach the loop as if they were current.
type session struct {
	sock   net.Conn
	lines  chan irc.Message
	errs   chan error
	pwrite chan string
	wrote  chan error
	quit   chan struct{}
}

func newConn(logger *log.Logger) *Conn {
	retry := time.NewTimer(time.Hour)
	if !retry.Stop() {
		<-retry.C
	}
	return &Conn{
		retry:          retry,
		ReconnectDelay: 2 * time.Second,
		log:            logger,
		wake:           make(chan struct{}, 1),
		calls:          make(chan func(), 16),
		halt:           make(chan struct{}),
		done:           make(chan struct{}),
		echoTTY:        isatty.IsTerminal(os.Stdout.Fd()),
	}
}

// Send queues one outbound line. The CRLF terminator is appended here;
// delivery order matches call order. Safe from any goroutine.
func (c *Conn) Send(line string) {
	select {
	case <-c.done:
		return
	default:
	}
	c.mu.Lock()
	c.writeq = append(c.writeq, line+"\r\n")
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Do posts fn to run on the dispatch loop.
func (c *Conn) Do(fn func()) {
	select {
	case c.calls <- fn:
	case <-c.done:
	}
}

// Timer is a cancellable handle for a callback scheduled with After.
// Stop is idempotent and a no-op once the callback has started.
type Timer struct {
	stopped atomic.Bool
	t       *time.Timer
}

func (t *Timer) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.t.Stop()
	}
}

// After schedules fn to run once on the dispatch loop after d.
func (c *Conn) After(d time.Duration, fn func()) *Timer {
	h := &Timer{}
	h.t = time.AfterFunc(d, func() {
		c.Do(func() {
			if !h.stopped.CompareAndSwap(false, true) {
				return
			}
			fn()
		})
	})
	return h
}

// Stop ends the dispatch loop. Graceful waits for the write queue to
// drain first; otherwise the connection is dropped on the spot.
func (c *Conn) Stop(graceful bool) {
	c.mu.Lock()
	c.stopping = true
	drained := len(c.writeq) == 0 && !c.inFlight
	c.mu.Unlock()
	if !graceful || drained {
		c.shutdown()
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) shutdown() {
	c.haltOne.Do(func() { close(c.halt) })
}

// Run connects and processes events until Stop or a termination signal.
func (c *Conn) Run() {
	defer close(c.done)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	defer c.retry.Stop()

	c.connect()

	for {
		c.pump()
		c.mu.Lock()
		// A drained queue ends a graceful stop. So does being offline:
		// with no writer there is nothing left to flush.
		finished := c.stopping && (c.cur == nil || (len(c.writeq) == 0 && !c.inFlight))
		c.mu.Unlock()
		if finished {
			c.teardown(false)
			return
		}

		var lines chan irc.Message
		var errs, wrote chan error
		if c.cur != nil {
			lines = c.cur.lines
			errs = c.cur.errs
			wrote = c.cur.wrote
		}

		select {
		case <-c.halt:
			c.teardown(false)
			return
		case <-sig:
			c.log.Info("termination signal received")
			if c.onTerminate != nil {
				c.onTerminate()
			}
			c.teardown(false)
			return
		case fn := <-c.calls:
			fn()
		case <-c.wake:
		case msg := <-lines:
			c.echo("<<", msg.Raw)
			if c.onLine != nil {
				c.onLine(msg)
			}
		case err := <-errs:
			c.ioError(err)
		case err := <-wrote:
			c.mu.Lock()
			c.inFlight = false
			c.mu.Unlock()
			if err != nil {
				c.ioError(err)
			}
		case <-c.retry.C:
			c.connect()
		}
	}
}

// pump hands the writer its next line. At most one write is in flight
// per connection; the queue stays in the loop's hands until then.
func (c *Conn) pump() {
	if c.cur == nil {
		return
	}
	c.mu.Lock()
	if c.inFlight || len(c.writeq) == 0 {
		c.mu.Unlock()
		return
	}
	line := c.writeq[0]
	c.writeq = c.writeq[1:]
	c.inFlight = true
	c.mu.Unlock()
	c.echo(">>", line)
	c.cur.pwrite <- line
}

func (c *Conn) connect() {
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if stopping || c.cur != nil {
		return
	}

	c.log.Info("connecting", "server", c.Server, "port", c.Port)
	dial := c.dial
	if dial == nil {
		dial = c.dialServer
	}
	sock, err := dial()
	if err != nil {
		c.log.Error("connection failed", "err", err)
		c.scheduleReconnect()
		return
	}

	s := &session{
		sock:   sock,
		lines:  make(chan irc.Message, 32),
		errs:   make(chan error, 1),
		pwrite: make(chan string, 1),
		wrote:  make(chan error, 1),
		quit:   make(chan struct{}),
	}
	c.cur = s
	go c.readLoop(s)
	go c.writeLoop(s)

	c.log.Info("connected", "addr", sock.RemoteAddr())
	if c.Pass != "" {
		c.Send("PASS " + c.Pass)
	}
	c.Send("NICK " + c.Nick)
	c.Send(fmt.Sprintf("USER %s 0 * :%s", c.Username, c.Realname))
	if c.onConnect != nil {
		c.onConnect()
	}
}

// dialServer resolves both ends fresh on every attempt and tries each
// remote address, pairing it with a bind address of the same family
// when one is configured.
func (c *Conn) dialServer() (net.Conn, error) {
	remotes, err := net.LookupIP(c.Server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", c.Server, err)
	}
	var locals []net.IP
	if c.Bind != "" {
		locals, err = net.LookupIP(c.Bind)
		if err != nil {
			return nil, fmt.Errorf("resolve bind host %s: %w", c.Bind, err)
		}
	}

	var lastErr error
	for _, rip := range remotes {
		raddr := &net.TCPAddr{IP: rip, Port: c.Port}
		if len(locals) == 0 {
			sock, err := net.DialTCP("tcp", nil, raddr)
			if err == nil {
				return sock, nil
			}
			lastErr = err
			continue
		}
		for _, lip := range locals {
			if (lip.To4() == nil) != (rip.To4() == nil) {
				continue
			}
			sock, err := net.DialTCP("tcp", &net.TCPAddr{IP: lip}, raddr)
			if err == nil {
				return sock, nil
			}
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no usable address for %s (bind %s)",
			net.JoinHostPort(c.Server, strconv.Itoa(c.Port)), c.Bind)
	}
	return nil, lastErr
}

func (c *Conn) readLoop(s *session) {
	scanner := bufio.NewScanner(s.sock)
	for scanner.Scan() {
		raw := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
		if len(raw) == 0 {
			continue
		}
		msg := irc.Parse(irc.Decode(raw))
		select {
		case s.lines <- msg:
		case <-s.quit:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case s.errs <- err:
	case <-s.quit:
	}
}

func (c *Conn) writeLoop(s *session) {
	for {
		select {
		case line := <-s.pwrite:
			_, err := s.sock.Write([]byte(line))
			select {
			case s.wrote <- err:
			case <-s.quit:
				return
			}
		case <-s.quit:
			return
		}
	}
}

// ioError handles a failure reported by the reader or writer. Errors
// from a socket we closed ourselves carry net.ErrClosed and are not
// failures at all.
func (c *Conn) ioError(err error) {
	if errors.Is(err, net.ErrClosed) {
		return
	}
	if errors.Is(err, io.EOF) {
		c.log.Warn("server closed the connection")
	} else {
		c.log.Error("connection error", "err", err)
	}
	c.teardown(true)
}

// Drop closes the current connection and schedules a reconnect. Only
// valid on the dispatch loop, e.g. from a line handler.
func (c *Conn) Drop() {
	c.teardown(true)
}

// teardown closes the current connection, if any, and optionally arms
// the reconnect timer. Once cur is nil, stale reader and writer results
// are no longer selected, so one disconnect schedules one reconnect.
func (c *Conn) teardown(reconnect bool) {
	if c.cur == nil {
		return
	}
	s := c.cur
	c.cur = nil
	close(s.quit)
	s.sock.Close()
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
	if reconnect {
		c.scheduleReconnect()
	}
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if stopping {
		return
	}
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	c.log.Info("reconnecting", "delay", delay)
	if !c.retry.Stop() {
		select {
		case <-c.retry.C:
		default:
		}
	}
	c.retry.Reset(delay)
}

var (
	echoInStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	echoOutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

func (c *Conn) echo(dir, line string) {
	if !c.Debug || !c.echoTTY {
		return
	}
	style := echoInStyle
	if dir == ">>" {
		style = echoOutStyle
	}
	fmt.Fprintf(os.Stdout, "%s %s %s\n",
		time.Now().Format("15:04:05"), style.Render(dir), strings.TrimRight(line, "\r\n"))
}
