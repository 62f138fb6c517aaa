package netbeans

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/internal/types"
)

// UnnamedWarning is passed to Sink.UnnamedBuffer.
const UnnamedWarning = "You cannot use netbeans on a \"[No Name]\" file.\nPlease, edit a file."

// errDisconnect ends the reactor loop without an error.
var errDisconnect = xerrors.New("editor disconnected")

// bufferFor returns the buffer an event must target. An unknown buffer
// number is handled according to the session's BufferIDPolicy: it is
// either a protocol violation or the event is dropped, in which case both
// return values are nil.
func (s *Session) bufferFor(m *Message, line string) (*types.Buffer, error) {
	if b := s.registry.ByID(m.BufID); b != nil {
		return b, nil
	}
	if s.cfg.BufferIDPolicy == BufferIDIgnore {
		s.log.Warn("ignoring event with invalid buffer id", "event", m.Name, "bufid", m.BufID)
		return nil, nil
	}
	return nil, protocolErrorf(line, "invalid buffer id %d in %v", m.BufID, m.Name)
}

// advisory returns the buffer an informational event refers to, or nil.
// These events never end the session.
func (s *Session) advisory(m *Message) *types.Buffer {
	b := s.registry.ByID(m.BufID)
	if b == nil {
		s.log.Debug("dropping event for unknown buffer", "event", m.Name, "bufid", m.BufID)
	}
	return b
}

func (s *Session) evtDisconnect(m *Message, line string) error {
	s.log.Info("editor disconnected")
	return errDisconnect
}

func (s *Session) evtFileOpened(m *Message, line string) error {
	if m.Str == "" {
		s.safely("UnnamedBuffer", func() { s.sink.UnnamedBuffer(UnnamedWarning) })
		return nil
	}
	b, err := s.registry.Get(m.Str)
	if err != nil {
		var ipe *InvalidPathnameError
		if xerrors.As(err, &ipe) {
			s.log.Error("absolute pathname required", "pathname", ipe.Pathname)
			return nil
		}
		return err
	}
	if b.ID() != m.BufID {
		if m.BufID != 0 {
			if s.cfg.BufferIDPolicy == BufferIDIgnore {
				s.log.Warn("ignoring fileOpened with wrong buffer id", "bufid", m.BufID, "want", b.ID())
				return nil
			}
			return protocolErrorf(line, "fileOpened with buffer id %d, want %d", m.BufID, b.ID())
		}
		if err := s.register(b); err != nil {
			return err
		}
	}
	s.safely("FileOpened", func() { s.sink.FileOpened(b) })
	return nil
}

// register gives the editor our number for b and tells it not to send
// document change events.
func (s *Session) register(b *types.Buffer) error {
	if err := PutBufferNumber(s, b); err != nil {
		return xerrors.Errorf("failed to register %v: %w", b.Name(), err)
	}
	if err := StopDocumentListen(s, b); err != nil {
		return xerrors.Errorf("failed to register %v: %w", b.Name(), err)
	}
	b.SetRegistered(true)
	return nil
}

func (s *Session) evtKeyAtPos(m *Message, line string) error {
	b, err := s.bufferFor(m, line)
	if b == nil {
		return err
	}
	if m.Str == "" {
		s.log.Debug("empty string in keyAtPos")
		return nil
	}
	if len(m.Args) == 0 || len(m.Args) > 2 {
		s.log.Error("invalid arguments in keyAtPos", "line", line)
		return nil
	}
	lnum, col, ok := parseLnumCol(m.Args[len(m.Args)-1])
	if !ok {
		s.log.Error("invalid lnum/col in keyAtPos", "arg", m.Args[len(m.Args)-1])
		return nil
	}
	if len(m.Args) == 2 {
		if off, err := strconv.Atoi(m.Args[0]); err == nil {
			b.SetOffset(off)
		}
	}
	b.SetPosition(lnum, col)
	cmd, args := splitCommand(m.Str)
	s.runCommand(b, cmd, args)
	return nil
}

// splitCommand splits a key string into its first word and the rest.
func splitCommand(str string) (cmd, args string) {
	str = strings.TrimLeftFunc(str, isSpaceRune)
	i := strings.IndexFunc(str, isSpaceRune)
	if i < 0 {
		return str, ""
	}
	return str[:i], strings.TrimLeftFunc(str[i:], isSpaceRune)
}

func (s *Session) runCommand(b *types.Buffer, cmd, args string) {
	f, ok := s.commands[cmd]
	if !ok {
		s.safely("DefaultCommand", func() { s.sink.DefaultCommand(b, cmd, args) })
		return
	}
	var err error
	s.safely("command "+cmd, func() { err = f(b, args) })
	if err != nil {
		s.log.Error("command failed", "command", cmd, "error", err)
	}
}

func (s *Session) evtKilled(m *Message, line string) error {
	b, err := s.bufferFor(m, line)
	if b == nil {
		return err
	}
	b.SetRegistered(false)
	s.safely("FileClosed", func() { s.sink.FileClosed(b) })
	return nil
}

func (s *Session) evtBalloonText(m *Message, line string) error {
	if s.events != nil {
		s.safely("BalloonText", func() { s.events.BalloonText(m.Str) })
	}
	return nil
}

func (s *Session) evtButtonRelease(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	button, ok := intArg(m, 0)
	if !ok {
		s.log.Error("invalid arguments in buttonRelease", "line", line)
		return nil
	}
	lnum, ok1 := intArg(m, 1)
	col, ok2 := intArg(m, 2)
	if ok1 && ok2 {
		b.SetPosition(lnum, col)
	}
	if s.events != nil {
		s.safely("ButtonRelease", func() { s.events.ButtonRelease(b, button) })
	}
	return nil
}

func (s *Session) evtKeyCommand(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	if s.events != nil {
		s.safely("KeyCommand", func() { s.events.KeyCommand(b, m.Str) })
	}
	return nil
}

func (s *Session) evtNewDotAndMark(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	if off, ok := intArg(m, 0); ok {
		b.SetOffset(off)
	}
	if s.events != nil {
		s.safely("NewDotAndMark", func() { s.events.NewDotAndMark(b) })
	}
	return nil
}

func (s *Session) evtInsert(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	if off, ok := intArg(m, 0); ok {
		b.SetOffset(off)
	}
	if s.events != nil {
		s.safely("Insert", func() { s.events.Insert(b, m.Str) })
	}
	return nil
}

func (s *Session) evtRemove(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	if off, ok := intArg(m, 0); ok {
		b.SetOffset(off)
	}
	length, _ := intArg(m, 1)
	if s.events != nil {
		s.safely("Remove", func() { s.events.Remove(b, length) })
	}
	return nil
}

func (s *Session) evtSave(m *Message, line string) error {
	b := s.advisory(m)
	if b == nil {
		return nil
	}
	if s.events != nil {
		s.safely("Save", func() { s.events.Save(b) })
	}
	return nil
}

func intArg(m *Message, i int) (int, bool) {
	if i >= len(m.Args) {
		return 0, false
	}
	n, err := strconv.Atoi(m.Args[i])
	return n, err == nil
}
