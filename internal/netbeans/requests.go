package netbeans

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/internal/types"
)

// Commands and functions of the netbeans protocol used by vimoir.
const (
	CmdEditFile            = "editFile"
	CmdPutBufferNumber     = "putBufferNumber"
	CmdStopDocumentListen  = "stopDocumentListen"
	CmdStartDocumentListen = "startDocumentListen"
	CmdNetbeansBuffer      = "netbeansBuffer"
	CmdShowBalloon         = "showBalloon"
	CmdSetDot              = "setDot"

	FuncGetCursor   = "getCursor"
	FuncGetLength   = "getLength"
	FuncGetModified = "getModified"
	FuncGetText     = "getText"
)

// EditFile asks the editor to edit pathname in b.
func EditFile(e Engine, b *types.Buffer, pathname string) error {
	return e.SendCommand(b, CmdEditFile, Quote(pathname))
}

// PutBufferNumber associates our number for b with the editor's buffer of
// the same name.
func PutBufferNumber(e Engine, b *types.Buffer) error {
	return e.SendCommand(b, CmdPutBufferNumber, Quote(b.Name()))
}

func StopDocumentListen(e Engine, b *types.Buffer) error {
	return e.SendCommand(b, CmdStopDocumentListen, "")
}

func StartDocumentListen(e Engine, b *types.Buffer) error {
	return e.SendCommand(b, CmdStartDocumentListen, "")
}

// NetbeansBuffer marks b as owned by netbeans, which makes the editor report
// buttonRelease events for it.
func NetbeansBuffer(e Engine, b *types.Buffer, owned bool) error {
	return e.SendCommand(b, CmdNetbeansBuffer, boolArg(owned))
}

// ShowBalloon shows text in a balloon at the mouse position.
func ShowBalloon(e Engine, text string) error {
	return e.SendCommand(nil, CmdShowBalloon, Quote(text))
}

// SetDot moves the cursor of b to lnum/col.
func SetDot(e Engine, b *types.Buffer, lnum, col int) error {
	return e.SendCommand(b, CmdSetDot, fmt.Sprintf("%d/%d", lnum, col))
}

func boolArg(v bool) string {
	if v {
		return "T"
	}
	return "F"
}

// ReplyError is returned by the reply decoders when the editor answered a
// function with an error message.
type ReplyError struct {
	Func string
	Msg  string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%v failed: %v", e.Func, e.Msg)
}

// replyErr reports an error reply, whose arguments start with "!".
func replyErr(fn string, r Reply) error {
	if len(r.Args) > 0 && strings.HasPrefix(r.Args[0], "!") {
		msg := strings.TrimPrefix(strings.Join(r.Args, " "), "!")
		return &ReplyError{Func: fn, Msg: msg}
	}
	return nil
}

func replyInts(fn string, r Reply, n int) ([]int, error) {
	if err := replyErr(fn, r); err != nil {
		return nil, err
	}
	if len(r.Args) < n {
		return nil, xerrors.Errorf("%v: short reply %q", fn, r.Args)
	}
	res := make([]int, n)
	for i := range res {
		v, err := strconv.Atoi(r.Args[i])
		if err != nil {
			return nil, xerrors.Errorf("%v: bad reply %q: %w", fn, r.Args, err)
		}
		res[i] = v
	}
	return res, nil
}

// Cursor is the reply to getCursor.
type Cursor struct {
	BufID  int
	Line   int
	Col    int
	Offset int
}

// GetCursor asks for the position of the cursor in the current buffer. f
// is called on the reactor goroutine.
func GetCursor(e Engine, f func(Cursor, error)) error {
	return e.SendFunction(nil, FuncGetCursor, "", func(r Reply) {
		v, err := replyInts(FuncGetCursor, r, 4)
		if err != nil {
			f(Cursor{}, err)
			return
		}
		f(Cursor{BufID: v[0], Line: v[1], Col: v[2], Offset: v[3]}, nil)
	})
}

// GetLength asks for the length of b in bytes.
func GetLength(e Engine, b *types.Buffer, f func(int, error)) error {
	return e.SendFunction(b, FuncGetLength, "", func(r Reply) {
		v, err := replyInts(FuncGetLength, r, 1)
		if err != nil {
			f(0, err)
			return
		}
		f(v[0], nil)
	})
}

// GetModified asks whether b has been modified. With a nil buffer the reply
// is the number of modified buffers.
func GetModified(e Engine, b *types.Buffer, f func(int, error)) error {
	return e.SendFunction(b, FuncGetModified, "", func(r Reply) {
		v, err := replyInts(FuncGetModified, r, 1)
		if err != nil {
			f(0, err)
			return
		}
		f(v[0], nil)
	})
}

// GetText asks for the contents of b.
func GetText(e Engine, b *types.Buffer, f func(string, error)) error {
	return e.SendFunction(b, FuncGetText, "", func(r Reply) {
		if err := replyErr(FuncGetText, r); err != nil {
			f("", err)
			return
		}
		if !r.HasStr {
			f("", xerrors.Errorf("%v: reply without text", FuncGetText))
			return
		}
		f(r.Str, nil)
	})
}
