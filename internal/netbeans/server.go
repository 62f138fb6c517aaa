package netbeans

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"
	"gopkg.in/retry.v1"
	"gopkg.in/tomb.v2"
)

const (
	DefaultHandshakeTimeout = 20 * time.Second
	DefaultTickInterval     = 200 * time.Millisecond
	DefaultListenRetry      = 5 * time.Second
)

// Config holds the protocol options of a Server.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string

	// Password is the shared secret expected in the AUTH line.
	Password string

	// Encoding names the character encoding of the stream, e.g. "utf-8"
	// or "latin1".
	Encoding string

	HandshakeTimeout time.Duration
	TickInterval     time.Duration

	// Reopen keeps the server accepting connections after a session ends.
	// Otherwise the server stops with the first session.
	Reopen bool

	BufferIDPolicy BufferIDPolicy

	// ListenRetry is how long Listen keeps retrying while the address is in
	// use.
	ListenRetry time.Duration
}

// Server accepts editor connections, one at a time, and runs a Session for
// each of them.
type Server struct {
	// NewRecorder, when set, is called for each new session to obtain the
	// Recorder of its wire lines.
	NewRecorder func(sessionID string) (Recorder, error)

	cfg  Config
	enc  encoding.Encoding
	sink Sink
	log  *slog.Logger

	tomb       tomb.Tomb
	ln         net.Listener
	terminated atomic.Bool

	mu     sync.Mutex
	active *Session
}

func NewServer(cfg Config, sink Sink, log *slog.Logger) (*Server, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ListenRetry <= 0 {
		cfg.ListenRetry = DefaultListenRetry
	}
	switch cfg.BufferIDPolicy {
	case "":
		cfg.BufferIDPolicy = BufferIDFatal
	case BufferIDFatal, BufferIDIgnore:
	default:
		return nil, xerrors.Errorf("unknown buffer id policy %q", cfg.BufferIDPolicy)
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	enc, err := htmlindex.Get(cfg.Encoding)
	if err != nil {
		return nil, xerrors.Errorf("unknown encoding %q: %w", cfg.Encoding, err)
	}
	return &Server{
		cfg:  cfg,
		enc:  enc,
		sink: sink,
		log:  log,
	}, nil
}

// Listen binds the server address. The previous process may still hold the
// port for a moment, so Listen retries for Config.ListenRetry.
func (s *Server) Listen() error {
	var err error
	strategy := retry.Regular{
		Total: s.cfg.ListenRetry,
		Delay: 250 * time.Millisecond,
		Min:   1,
	}
	for a := retry.Start(strategy, nil); a.Next(); {
		var ln net.Listener
		ln, err = net.Listen("tcp", s.cfg.Addr)
		if err == nil {
			s.ln = ln
			s.log.Info("listening", "addr", ln.Addr().String())
			return nil
		}
		s.log.Debug("listen failed, retrying", "addr", s.cfg.Addr, "error", err)
	}
	return xerrors.Errorf("failed to listen on %v: %w", s.cfg.Addr, err)
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done, the server is terminated or,
// in oneshot mode, the first session ends. It returns the error that ended
// the last session, if any.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.tomb.Go(func() error {
		s.tomb.Go(s.acceptLoop)
		select {
		case <-ctx.Done():
			s.log.Info("shutting down", "reason", ctx.Err())
			s.tomb.Kill(nil)
		case <-s.tomb.Dying():
		}
		s.ln.Close()
		s.closeActive()
		return nil
	})
	return s.tomb.Wait()
}

// Terminate stops accepting connections; Serve returns once the current
// session, if any, has ended.
func (s *Server) Terminate() {
	if s.terminated.Swap(true) {
		return
	}
	s.log.Info("server terminated")
	if s.ln != nil {
		s.ln.Close()
	}
	if s.activeSession() == nil {
		s.tomb.Kill(nil)
	}
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.tomb.Alive() || s.terminated.Load() {
				return nil
			}
			return xerrors.Errorf("failed to accept connection: %w", err)
		}

		s.mu.Lock()
		if !s.tomb.Alive() || s.terminated.Load() {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		if s.active != nil {
			s.mu.Unlock()
			s.log.Warn("rejecting connection, a session is already active", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}
		sess := newSession(conn, s.cfg, s.enc, s.sink, s.log)
		s.active = sess
		s.mu.Unlock()

		s.tomb.Go(func() error {
			s.runSession(sess)
			return nil
		})
		if !s.cfg.Reopen {
			// oneshot: no other editor may connect
			s.terminated.Store(true)
			s.ln.Close()
			return nil
		}
	}
}

func (s *Server) runSession(sess *Session) {
	if s.NewRecorder != nil {
		rec, err := s.NewRecorder(sess.ID)
		if err != nil {
			sess.log.Error("failed to open transcript", "error", err)
		} else {
			sess.recorder = rec
		}
	}
	sess.terminate = s.Terminate

	err := sess.Run()

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	if s.terminated.Load() {
		s.tomb.Kill(err)
		return
	}
	if err != nil {
		sess.log.Error("session ended with error", "error", err)
	}
}

func (s *Server) activeSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Server) closeActive() {
	if sess := s.activeSession(); sess != nil {
		sess.Close()
	}
}
