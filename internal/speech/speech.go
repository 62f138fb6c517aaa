// Package speech turns text into speech. Without a text-to-speech command
// the text is printed instead.
package speech

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"
)

// QueueSize is the number of utterances waiting to be spoken beyond which
// new ones are dropped.
const QueueSize = 64

// Speaker speaks one utterance at a time on its own goroutine, so that Speak
// never blocks its caller.
type Speaker struct {
	argv []string
	out  io.Writer
	log  *slog.Logger

	queue chan string
	tomb  tomb.Tomb
}

// New returns a Speaker that runs argv with the text appended as a final
// argument, or prints `speak> "text"` lines to out when argv is empty.
func New(argv []string, out io.Writer, log *slog.Logger) *Speaker {
	s := &Speaker{
		argv:  argv,
		out:   out,
		log:   log,
		queue: make(chan string, QueueSize),
	}
	s.tomb.Go(s.loop)
	return s
}

// Speak queues text.
func (s *Speaker) Speak(text string) {
	select {
	case s.queue <- text:
	default:
		s.log.Warn("speech queue full, dropping text", "text", text)
	}
}

func (s *Speaker) loop() error {
	for {
		select {
		case text := <-s.queue:
			s.say(text)
		case <-s.tomb.Dying():
			// finish what has been queued
			for {
				select {
				case text := <-s.queue:
					s.say(text)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Speaker) say(text string) {
	if err := s.speak(text); err != nil {
		s.log.Error("failed to speak", "text", text, "error", err)
	}
}

func (s *Speaker) speak(text string) error {
	if len(s.argv) == 0 {
		_, err := fmt.Fprintf(s.out, "speak> \"%s\"\n", text)
		return err
	}
	args := append(append([]string(nil), s.argv[1:]...), text)
	out, err := exec.Command(s.argv[0], args...).CombinedOutput()
	if err != nil {
		return xerrors.Errorf("%v: %w: %s", s.argv[0], err, out)
	}
	return nil
}

// Close speaks the queued text and stops the Speaker.
func (s *Speaker) Close() error {
	s.tomb.Kill(nil)
	return s.tomb.Wait()
}
