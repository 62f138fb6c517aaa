package main

import (
	"fmt"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/config"
	"github.com/jbpratt78/vimoir/internal/netbeans"
	"github.com/jbpratt78/vimoir/internal/process"
	"github.com/jbpratt78/vimoir/internal/types"
	"github.com/jbpratt78/vimoir/internal/watch"
)

type speaker interface {
	Speak(text string)
}

// vimstate is the netbeans application: it speaks the editor events and
// runs the :nbkey commands.
type vimstate struct {
	log     *slog.Logger
	speaker speaker
	runner  *process.Runner

	// watcher may be nil
	watcher *watch.Watcher

	engine netbeans.Engine

	// buffers represents the buffers open in the editor, by buffer number.
	// It is only accessed on the reactor goroutine.
	buffers map[int]*types.Buffer
}

func newVimstate(sp speaker, runner *process.Runner, w *watch.Watcher, log *slog.Logger) *vimstate {
	return &vimstate{
		log:     log,
		speaker: sp,
		runner:  runner,
		watcher: w,
	}
}

var _ netbeans.EventSink = (*vimstate)(nil)

func (v *vimstate) Init(e netbeans.Engine) error {
	v.engine = e
	v.buffers = make(map[int]*types.Buffer)
	return nil
}

func (v *vimstate) SessionOpened() {
	v.speaker.Speak("Phonemic is connected to Vim")
}

func (v *vimstate) SessionClosed() {
	for _, b := range v.buffers {
		v.unwatch(b)
	}
	v.buffers = nil
	v.speaker.Speak("Phonemic is disconnected from Vim")
}

func (v *vimstate) FileOpened(b *types.Buffer) {
	v.speaker.Speak("Opening the file " + b.Basename())
	if err := netbeans.NetbeansBuffer(v.engine, b, true); err != nil {
		v.log.Error("failed to send netbeansBuffer", "buffer", b.Name(), "error", err)
	}
	if _, ok := v.buffers[b.ID()]; ok {
		return
	}
	v.buffers[b.ID()] = b
	if v.watcher != nil {
		if err := v.watcher.Add(b.Name()); err != nil {
			v.log.Warn("cannot watch file", "buffer", b.Name(), "error", err)
		}
	}
}

func (v *vimstate) FileClosed(b *types.Buffer) {
	v.speaker.Speak("Closing the file " + b.Basename())
	delete(v.buffers, b.ID())
	v.unwatch(b)
}

func (v *vimstate) unwatch(b *types.Buffer) {
	if v.watcher != nil {
		v.watcher.Remove(b.Name())
	}
}

// Tick reports the open files that changed on disk.
func (v *vimstate) Tick() {
	if v.watcher == nil {
		return
	}
	for _, c := range v.watcher.Changes() {
		b, err := v.engine.Buffer(c.Path)
		if err != nil {
			continue
		}
		if c.Removed {
			v.speaker.Speak(fmt.Sprintf("The file %v has been removed", b.Basename()))
		} else {
			v.speaker.Speak(fmt.Sprintf("The file %v has changed on disk", b.Basename()))
		}
	}
}

func (v *vimstate) UnnamedBuffer(msg string) {
	v.speaker.Speak(msg)
}

func (v *vimstate) Commands() map[string]netbeans.CommandFunc {
	return map[string]netbeans.CommandFunc{
		string(config.CommandSpeak):  v.cmdSpeak,
		string(config.CommandQuit):   v.cmdQuit,
		string(config.CommandRun):    v.cmdRun,
		string(config.CommandCursor): v.cmdCursor,
	}
}

func (v *vimstate) DefaultCommand(b *types.Buffer, name, args string) {
	v.log.Info("nbkey", "command", name, "args", args, "buffer", b.String())
}

func (v *vimstate) cmdSpeak(b *types.Buffer, args string) error {
	v.speaker.Speak(args)
	return nil
}

func (v *vimstate) cmdQuit(b *types.Buffer, args string) error {
	v.log.Info("terminating the server at the end of the session")
	v.engine.TerminateServer()
	return nil
}

// cmdRun runs a process on a worker goroutine and shows its output in a
// balloon of the session that ran the command.
func (v *vimstate) cmdRun(b *types.Buffer, args string) error {
	argv := netbeans.SplitQuoted(args)
	if len(argv) == 0 {
		return xerrors.Errorf("%v: missing command", config.CommandRun)
	}
	e := v.engine
	v.runner.Start(args, argv, func(res process.Result) {
		if err := netbeans.ShowBalloon(e, res.Message()); err != nil {
			v.log.Error("failed to show process result", "error", err)
		}
	})
	return nil
}

func (v *vimstate) cmdCursor(b *types.Buffer, args string) error {
	return netbeans.GetCursor(v.engine, func(c netbeans.Cursor, err error) {
		if err != nil {
			v.log.Error("getCursor failed", "error", err)
			return
		}
		name := "unknown buffer"
		if cb := v.engine.BufferByID(c.BufID); cb != nil {
			name = cb.Basename()
		}
		v.speaker.Speak(fmt.Sprintf("Line %d, column %d in %v", c.Line, c.Col, name))
	})
}

func (v *vimstate) Version(version string) {
	v.log.Info("editor netbeans version", "version", version)
}

func (v *vimstate) BalloonText(text string) {
	v.speaker.Speak(text)
}

func (v *vimstate) ButtonRelease(b *types.Buffer, button int) {
	p := b.Cursor()
	v.speaker.Speak(fmt.Sprintf("Button %d released at line %d in %v", button, p.Line, b.Basename()))
}

func (v *vimstate) KeyCommand(b *types.Buffer, keyName string) {
	v.log.Info("key command", "key", keyName, "buffer", b.String())
}

func (v *vimstate) NewDotAndMark(b *types.Buffer) {
	v.log.Debug("cursor moved", "buffer", b.Name(), "offset", b.Cursor().Offset)
}

func (v *vimstate) Insert(b *types.Buffer, text string) {
	v.speaker.Speak("Inserted " + text)
}

func (v *vimstate) Remove(b *types.Buffer, length int) {
	v.speaker.Speak(fmt.Sprintf("Removed %d bytes", length))
}

func (v *vimstate) Save(b *types.Buffer) {
	v.speaker.Speak("Saved the file " + b.Basename())
}
