package netbeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbpratt78/vimoir/internal/types"
)

// fakeEngine records requests and keeps function observers for the test to
// call.
type fakeEngine struct {
	sent      []string
	observers []Observer
}

func (e *fakeEngine) Buffer(pathname string) (*types.Buffer, error) { return nil, nil }
func (e *fakeEngine) BufferByID(id int) *types.Buffer               { return nil }
func (e *fakeEngine) Close()                                        {}
func (e *fakeEngine) TerminateServer()                              {}

func (e *fakeEngine) SendCommand(b *types.Buffer, name, args string) error {
	e.sent = append(e.sent, name+"!"+args)
	return nil
}

func (e *fakeEngine) SendFunction(b *types.Buffer, name, args string, observer Observer) error {
	e.sent = append(e.sent, name+"/"+args)
	e.observers = append(e.observers, observer)
	return nil
}

func TestCommands(t *testing.T) {
	e := &fakeEngine{}
	b := types.NewBuffer("/tmp/x y.txt", 1)
	require.NoError(t, EditFile(e, b, "/tmp/x y.txt"))
	require.NoError(t, PutBufferNumber(e, b))
	require.NoError(t, StartDocumentListen(e, b))
	require.NoError(t, StopDocumentListen(e, b))
	require.NoError(t, NetbeansBuffer(e, b, false))
	require.NoError(t, ShowBalloon(e, "a\nb"))
	require.NoError(t, SetDot(e, b, 3, 0))
	assert.Equal(t, []string{
		`editFile!"/tmp/x y.txt"`,
		`putBufferNumber!"/tmp/x y.txt"`,
		`startDocumentListen!`,
		`stopDocumentListen!`,
		`netbeansBuffer!F`,
		`showBalloon!"a\nb"`,
		`setDot!3/0`,
	}, e.sent)
}

func TestReplyDecoders(t *testing.T) {
	e := &fakeEngine{}
	var (
		modified int
		cursor   Cursor
		errs     []error
	)
	require.NoError(t, GetModified(e, nil, func(n int, err error) {
		modified = n
		errs = append(errs, err)
	}))
	require.NoError(t, GetCursor(e, func(c Cursor, err error) {
		cursor = c
		errs = append(errs, err)
	}))
	require.NoError(t, GetCursor(e, func(c Cursor, err error) {
		errs = append(errs, err)
	}))
	require.NoError(t, GetText(e, nil, func(s string, err error) {
		errs = append(errs, err)
	}))

	e.observers[0](Reply{Seqno: 1, Args: []string{"2"}})
	e.observers[1](Reply{Seqno: 2, Args: []string{"1", "10", "0", "230"}})
	e.observers[2](Reply{Seqno: 3, Args: []string{"1", "x"}})
	e.observers[3](Reply{Seqno: 4, Args: []string{"!no", "text"}})

	assert.Equal(t, 2, modified)
	assert.Equal(t, Cursor{BufID: 1, Line: 10, Col: 0, Offset: 230}, cursor)
	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Error(t, errs[2])
	var re *ReplyError
	require.ErrorAs(t, errs[3], &re)
	assert.Equal(t, &ReplyError{Func: FuncGetText, Msg: "no text"}, re)
}
