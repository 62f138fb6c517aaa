package netbeans

import (
	"github.com/jbpratt78/vimoir/internal/types"
)

// Sink is the application driven by the netbeans engine. All methods except
// Init are called on the reactor goroutine and must not block; long running
// work belongs on another goroutine, which may call back into the Engine.
type Sink interface {
	// Init is called once per accepted connection, before the handshake,
	// with the handle used to talk to the editor.
	Init(e Engine) error

	// SessionOpened is called when the editor has sent startupDone.
	SessionOpened()

	// SessionClosed is called once when an opened session ends.
	SessionClosed()

	FileOpened(b *types.Buffer)
	FileClosed(b *types.Buffer)

	// Tick is called every tick interval, regardless of traffic.
	Tick()

	// UnnamedBuffer is called when the editor opens a buffer that has no
	// file name, which netbeans cannot track.
	UnnamedBuffer(msg string)

	// Commands returns the handlers for :nbkey commands, indexed by the
	// first word of the key string. It is called once per session.
	Commands() map[string]CommandFunc

	// DefaultCommand handles :nbkey commands missing from Commands.
	DefaultCommand(b *types.Buffer, name, args string)
}

// A CommandFunc handles a :nbkey command. args is the key string without
// its leading command word.
type CommandFunc func(b *types.Buffer, args string) error

// EventSink is implemented by sinks that want the remaining editor events.
type EventSink interface {
	Version(v string)
	BalloonText(text string)
	ButtonRelease(b *types.Buffer, button int)
	KeyCommand(b *types.Buffer, keyName string)
	NewDotAndMark(b *types.Buffer)
	Insert(b *types.Buffer, text string)
	Remove(b *types.Buffer, length int)
	Save(b *types.Buffer)
}

// Engine is the sink's handle on the session. Its methods are safe for
// concurrent use.
type Engine interface {
	// Buffer returns the buffer for an absolute pathname, creating it if
	// needed.
	Buffer(pathname string) (*types.Buffer, error)

	// BufferByID returns the buffer numbered id, or nil.
	BufferByID(id int) *types.Buffer

	// SendCommand sends a command; b may be nil for buffer number 0. args
	// are sent verbatim, use Quote for string parameters.
	SendCommand(b *types.Buffer, name, args string) error

	// SendFunction sends a function; observer is called with its reply.
	SendFunction(b *types.Buffer, name, args string, observer Observer) error

	// Close ends the session.
	Close()

	// TerminateServer stops accepting connections. The server returns once
	// the current session has ended.
	TerminateServer()
}
