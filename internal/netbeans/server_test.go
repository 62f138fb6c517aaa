package netbeans

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/internal/types"
)

type testRecorder struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (r *testRecorder) Record(dir, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, dir+" "+line)
	return nil
}

func (r *testRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func newTestServer(t *testing.T, cfg Config, sink Sink) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	s, err := NewServer(cfg, sink, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Listen())
	return s
}

func serve(ctx context.Context, s *Server) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()
	return errc
}

func dial(t *testing.T, s *Server) *testEditor {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	return newTestEditor(t, conn)
}

func TestNewServerErrors(t *testing.T) {
	_, err := NewServer(Config{Encoding: "no-such-encoding"}, newTestSink(), discardLogger())
	assert.Error(t, err)
	_, err = NewServer(Config{BufferIDPolicy: "sometimes"}, newTestSink(), discardLogger())
	assert.Error(t, err)
}

func TestServerTerminateBeforeListen(t *testing.T) {
	s, err := NewServer(testConfig(), newTestSink(), discardLogger())
	require.NoError(t, err)
	assert.NotPanics(t, s.Terminate)
	assert.Nil(t, s.Addr())
}

func TestServerOneshot(t *testing.T) {
	sink := newTestSink()
	s := newTestServer(t, testConfig(), sink)
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)
	ed.send("0:disconnect=1")
	require.NoError(t, waitErr(t, errc))
	sink.expect(t, "SessionClosed")
}

func TestServerOneshotFatal(t *testing.T) {
	sink := newTestSink()
	s := newTestServer(t, testConfig(), sink)
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.send("AUTH nope")
	assert.True(t, xerrors.Is(waitErr(t, errc), ErrAuth))
}

func TestServerReopen(t *testing.T) {
	cfg := testConfig()
	cfg.Reopen = true
	sink := newTestSink()
	s := newTestServer(t, cfg, sink)
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)

	// a second editor is turned away
	other := dial(t, s)
	other.conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err := other.r.ReadByte()
	assert.Equal(t, io.EOF, err)

	ed.send("0:disconnect=1")
	sink.expect(t, "SessionClosed")
	assert.Eventually(t, func() bool { return s.activeSession() == nil }, testTimeout, time.Millisecond)

	// a fatal error ends the session, not the server
	ed = dial(t, s)
	sink.expect(t, "Init")
	ed.send("AUTH nope")
	assert.Eventually(t, func() bool { return s.activeSession() == nil }, testTimeout, time.Millisecond)

	ed = dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)
	sink.engine.TerminateServer()
	select {
	case err := <-errc:
		t.Fatalf("server returned before the session ended: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	ed.send("0:disconnect=2")
	require.NoError(t, waitErr(t, errc))
	sink.expect(t, "SessionClosed")
}

func TestServerCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Reopen = true
	sink := newTestSink()
	s := newTestServer(t, cfg, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := serve(ctx, s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)
	cancel()
	require.NoError(t, waitErr(t, errc))
	sink.expect(t, "SessionClosed")
}

func TestServerRecorder(t *testing.T) {
	sink := newTestSink()
	s := newTestServer(t, testConfig(), sink)
	rec := &testRecorder{}
	var sessionID string
	s.NewRecorder = func(id string) (Recorder, error) {
		sessionID = id
		return rec, nil
	}
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)
	ed.open(sink, "/tmp/a.txt")
	ed.send("0:disconnect=3")
	require.NoError(t, waitErr(t, errc))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.NotEmpty(t, sessionID)
	assert.True(t, rec.closed)
	assert.Equal(t, []string{
		"in AUTH ********",
		`in 0:version=0 "2.5"`,
		"in 0:startupDone=0",
		`in 0:fileOpened=0 "/tmp/a.txt" T F`,
		`out 1:putBufferNumber!1 "/tmp/a.txt"`,
		"out 1:stopDocumentListen!2",
		"in 0:disconnect=3",
	}, rec.lines)
}

func TestServerEncoding(t *testing.T) {
	cfg := testConfig()
	cfg.Encoding = "latin1"
	sink := newTestSink()
	s := newTestServer(t, cfg, sink)
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)

	enc := charmap.Windows1252.NewEncoder()
	line, err := enc.String(`0:fileOpened=0 "/tmp/café.txt" T F` + "\n")
	require.NoError(t, err)
	_, err = io.WriteString(ed.conn, line)
	require.NoError(t, err)

	ed.conn.SetReadDeadline(time.Now().Add(testTimeout))
	raw, err := ed.r.ReadBytes('\n')
	require.NoError(t, err)
	assert.Equal(t, []byte("1:putBufferNumber!1 \"/tmp/caf\xe9.txt\"\n"), raw)
	ed.recv()
	sink.expect(t, "FileOpened /tmp/café.txt")

	ed.send("0:disconnect=2")
	require.NoError(t, waitErr(t, errc))
}

// TestSessionWire checks the exact bytes sent to the editor in a short
// editing session.
func TestSessionWire(t *testing.T) {
	sink := newTestSink()
	sink.fileOpened = func(e Engine, b *types.Buffer) {
		NetbeansBuffer(e, b, true)
	}
	sink.commands["balloon"] = func(b *types.Buffer, args string) error {
		return ShowBalloon(sink.engine, args)
	}
	sink.commands["goto"] = func(b *types.Buffer, args string) error {
		var lnum, col int
		if _, err := fmt.Sscanf(args, "%d %d", &lnum, &col); err != nil {
			return err
		}
		return SetDot(sink.engine, b, lnum, col)
	}
	s := newTestServer(t, testConfig(), sink)
	errc := serve(context.Background(), s)

	ed := dial(t, s)
	sink.expect(t, "Init")
	ed.handshake(sink)
	ed.send(
		`0:fileOpened=0 "/home/user/notes.txt" T F`,
		`0:fileOpened=0 "/home/user/a \"quoted\" name.txt" T F`,
		`1:keyAtPos=3 "balloon tab	and \"quotes\"" 3/1`,
		`2:keyAtPos=4 "goto 12 5" 1/0`,
	)
	var got strings.Builder
	for i := 0; i < 8; i++ {
		got.WriteString(ed.recv() + "\n")
	}
	ed.send("0:disconnect=5")
	require.NoError(t, waitErr(t, errc))

	g := goldie.New(t)
	g.Assert(t, "session_wire", []byte(got.String()))
}
