package netbeans

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"

	"github.com/jbpratt78/vimoir/internal/types"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateAccepting State = iota
	StateHandshake
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateHandshake:
		return "handshake"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// BufferIDPolicy decides what happens to an event that references a buffer
// number the registry does not know.
type BufferIDPolicy string

const (
	// BufferIDFatal treats the event as a protocol violation.
	BufferIDFatal BufferIDPolicy = "fatal"

	// BufferIDIgnore logs and drops the event.
	BufferIDIgnore BufferIDPolicy = "ignore"
)

// Directions passed to a Recorder.
const (
	Inbound  = "in"
	Outbound = "out"
)

// redactedPassword replaces the password of AUTH lines in logs and
// transcripts.
const redactedPassword = "********"

// A Recorder is given every line exchanged with the editor.
type Recorder interface {
	Record(dir, line string) error
	Close() error
}

// Session is the single live connection with the editor. It runs the
// handshake and then dispatches events and replies on its reactor goroutine,
// while a reader goroutine frames the input and a writer goroutine drains the
// output queue.
type Session struct {
	ID string

	conn     net.Conn
	cfg      Config
	enc      encoding.Encoding
	log      *slog.Logger
	sink     Sink
	events   EventSink
	commands map[string]CommandFunc
	recorder Recorder

	registry *Registry
	corr     Correlator
	queue    *Queue
	handlers map[string]func(m *Message, line string) error

	state     int32
	authed    bool
	opened    bool
	closeOnce sync.Once
	terminate func()

	tomb tomb.Tomb
}

func newSession(conn net.Conn, cfg Config, enc encoding.Encoding, sink Sink, log *slog.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		ID:       id,
		conn:     conn,
		cfg:      cfg,
		enc:      enc,
		log:      log.With("session", id),
		sink:     sink,
		registry: NewRegistry(),
		state:    int32(StateHandshake),
	}
	s.queue = NewQueue(enc, s.log)
	s.events, _ = sink.(EventSink)
	s.handlers = map[string]func(*Message, string) error{
		"disconnect":    s.evtDisconnect,
		"fileOpened":    s.evtFileOpened,
		"keyAtPos":      s.evtKeyAtPos,
		"killed":        s.evtKilled,
		"balloonText":   s.evtBalloonText,
		"buttonRelease": s.evtButtonRelease,
		"keyCommand":    s.evtKeyCommand,
		"newDotAndMark": s.evtNewDotAndMark,
		"insert":        s.evtInsert,
		"remove":        s.evtRemove,
		"save":          s.evtSave,
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Run runs the session until the editor disconnects, the session is closed
// or a fatal error occurs, which is returned.
func (s *Session) Run() error {
	if err := s.sink.Init(s); err != nil {
		s.conn.Close()
		return xerrors.Errorf("failed to initialise sink: %w", err)
	}
	s.commands = s.sink.Commands()
	s.log.Info("session started", "remote", s.conn.RemoteAddr().String())
	s.tomb.Go(s.loop)
	err := s.tomb.Wait()
	s.teardown()
	return err
}

// loop is the reactor: it owns parsing, dispatch and reply correlation.
func (s *Session) loop() (err error) {
	defer func() {
		// kill first so the reader and writer see a closed connection as
		// an orderly shutdown
		s.tomb.Kill(err)
		s.conn.Close()
	}()

	lines := make(chan string)
	s.tomb.Go(func() error {
		return s.readLoop(lines)
	})
	s.tomb.Go(s.writeLoop)

	// A Ticker drops ticks for a slow receiver, there are no catch-up bursts.
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	handshake := time.NewTimer(s.cfg.HandshakeTimeout)
	defer handshake.Stop()

	for {
		select {
		case <-s.tomb.Dying():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.log.Info("editor closed the connection")
				return nil
			}
			if err := s.handleLine(line); err != nil {
				if xerrors.Is(err, errDisconnect) {
					return nil
				}
				if IsFatal(err) {
					return err
				}
				s.log.Error("error handling message", "error", err)
			}
		case <-ticker.C:
			s.safely("tick", s.sink.Tick)
		case <-handshake.C:
			if s.State() == StateHandshake {
				return ErrHandshakeTimeout
			}
		}
	}
}

func (s *Session) readLoop(lines chan<- string) error {
	defer close(lines)
	r := bufio.NewReaderSize(transform.NewReader(s.conn, s.enc.NewDecoder()), ChunkSize)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if line != "" {
				s.log.Warn("discarding unterminated line", "line", line)
			}
			if err == io.EOF || !s.tomb.Alive() {
				return nil
			}
			return xerrors.Errorf("failed to read from editor: %w", err)
		}
		select {
		case lines <- line:
		case <-s.tomb.Dying():
			return nil
		}
	}
}

func (s *Session) writeLoop() error {
	for {
		select {
		case <-s.tomb.Dying():
			return nil
		case <-s.queue.Ready():
			for chunk := s.queue.Next(ChunkSize); chunk != nil; chunk = s.queue.Next(ChunkSize) {
				if _, err := s.conn.Write(chunk); err != nil {
					if !s.tomb.Alive() {
						return nil
					}
					return xerrors.Errorf("failed to write to editor: %w", err)
				}
			}
		}
	}
}

// teardown runs once the reactor and its goroutines have stopped.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.queue.Close()
		s.conn.Close()
		if n := s.corr.Drop(); n > 0 {
			s.log.Info("dropped pending functions", "count", n)
		}
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				s.log.Error("failed to close transcript", "error", err)
			}
		}
		if s.opened {
			s.safely("SessionClosed", s.sink.SessionClosed)
		}
		s.log.Info("session closed")
	})
}

func (s *Session) handleLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	logged := redactAuth(line)
	s.log.Debug("recv", "line", logged)
	s.record(Inbound, logged)
	if strings.TrimSpace(line) == "" {
		return nil
	}
	switch s.State() {
	case StateHandshake:
		return s.handshake(line)
	case StateReady:
		return s.dispatch(line)
	}
	return nil
}

// redactAuth hides the password of an AUTH line from the log and the
// transcript.
func redactAuth(line string) string {
	if reAuth.MatchString(line) {
		return "AUTH " + redactedPassword
	}
	return line
}

// handshake processes the messages received before startupDone: AUTH, then
// version, then startupDone.
func (s *Session) handshake(line string) error {
	if sm := reAuth.FindStringSubmatch(line); sm != nil {
		if s.authed {
			return protocolErrorf(line, "duplicate AUTH")
		}
		if subtle.ConstantTimeCompare([]byte(sm[1]), []byte(s.cfg.Password)) != 1 {
			return xerrors.Errorf("%w: invalid password", ErrAuth)
		}
		s.authed = true
		return nil
	}
	if !s.authed {
		return protocolErrorf(line, "expected AUTH")
	}
	m, err := Parse(line)
	if err != nil || !m.IsEvent {
		return protocolErrorf(line, "received unexpected message during handshake")
	}
	switch m.Name {
	case "version":
		s.log.Info("editor netbeans version", "version", m.Str)
		if s.events != nil {
			s.safely("Version", func() { s.events.Version(m.Str) })
		}
		return nil
	case "startupDone":
		s.setState(StateReady)
		s.queue.SetReady()
		s.opened = true
		s.log.Info("session ready")
		s.safely("SessionOpened", s.sink.SessionOpened)
		return nil
	}
	return protocolErrorf(line, "received unexpected event during handshake")
}

func (s *Session) dispatch(line string) error {
	m, err := Parse(line)
	if err != nil {
		s.log.Warn("discarding invalid netbeans message", "line", line)
		return nil
	}
	if m.IsEvent {
		h, ok := s.handlers[m.Name]
		if !ok {
			s.log.Debug("ignoring event", "event", m.Name)
			return nil
		}
		return h(m, line)
	}

	observer, dup, err := s.corr.Match(m.Seqno)
	if err != nil {
		if pe, ok := err.(*ProtocolError); ok {
			pe.Line = line
		}
		return err
	}
	if dup {
		s.log.Debug("ignoring repeated reply", "seqno", m.Seqno)
		return nil
	}
	s.safely("reply observer", func() {
		observer(Reply{Seqno: m.Seqno, Str: m.Str, HasStr: m.HasStr, Args: m.Args})
	})
	return nil
}

// safely calls f, logging rather than propagating a panic: a misbehaving
// sink must not take the session down.
func (s *Session) safely(what string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic", "in", what, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	f()
}

func (s *Session) record(dir, line string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(dir, line); err != nil {
		s.log.Error("failed to record line", "error", err)
	}
}

// send composes a command (sep '!') or a function (sep '/') and queues it.
func (s *Session) send(b *types.Buffer, name string, sep byte, args string, observer Observer) error {
	bufID := 0
	if b != nil {
		bufID = b.ID()
	}
	_, err := s.corr.Send(observer, func(seqno int) error {
		msg := fmt.Sprintf("%d:%s%c%d", bufID, name, sep, seqno)
		if args != "" {
			msg += " " + args
		}
		if err := s.queue.Enqueue(msg + "\n"); err != nil {
			return err
		}
		s.log.Debug("send", "line", msg)
		s.record(Outbound, msg)
		return nil
	})
	return err
}

// Buffer implements Engine.
func (s *Session) Buffer(pathname string) (*types.Buffer, error) {
	return s.registry.Get(pathname)
}

// BufferByID implements Engine.
func (s *Session) BufferByID(id int) *types.Buffer {
	return s.registry.ByID(id)
}

// SendCommand implements Engine.
func (s *Session) SendCommand(b *types.Buffer, name, args string) error {
	return s.send(b, name, '!', args, nil)
}

// SendFunction implements Engine.
func (s *Session) SendFunction(b *types.Buffer, name, args string, observer Observer) error {
	if observer == nil {
		observer = func(Reply) {}
	}
	return s.send(b, name, '/', args, observer)
}

// Close implements Engine.
func (s *Session) Close() {
	s.tomb.Kill(nil)
}

// TerminateServer implements Engine.
func (s *Session) TerminateServer() {
	if s.terminate != nil {
		s.terminate()
	}
}
