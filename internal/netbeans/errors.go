package netbeans

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrNotReady is returned when a command or function is sent before the
	// handshake has completed.
	ErrNotReady = xerrors.New("netbeans session not ready")

	// ErrClosed is returned when sending on a session that has been closed.
	ErrClosed = xerrors.New("netbeans session closed")

	// ErrAuth is returned when the AUTH password does not match.
	ErrAuth = xerrors.New("netbeans authentication failed")

	// ErrHandshakeTimeout is returned when startupDone is not received in time.
	ErrHandshakeTimeout = xerrors.New("timed out waiting for startupDone")

	// ErrMalformed is returned by Parse for a line that is neither an event
	// nor a reply.
	ErrMalformed = xerrors.New("invalid netbeans message")
)

// InvalidPathnameError is returned by the registry for a pathname that is not
// absolute.
type InvalidPathnameError struct {
	Pathname string
}

func (e *InvalidPathnameError) Error() string {
	return fmt.Sprintf("%q is not an absolute path", e.Pathname)
}

// ProtocolError reports a desynchronized peer: an unexpected message during
// the handshake, a reply that does not match the oldest pending function, or
// an event referencing an unknown buffer.
type ProtocolError struct {
	Msg  string
	Line string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return "netbeans protocol violation: " + e.Msg
	}
	return fmt.Sprintf("netbeans protocol violation: %v: %q", e.Msg, e.Line)
}

func protocolErrorf(line string, format string, args ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Line: line}
}

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	return xerrors.As(err, &pe) || xerrors.Is(err, ErrAuth) || xerrors.Is(err, ErrHandshakeTimeout)
}
