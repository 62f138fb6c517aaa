package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbpratt78/vimoir/config"
	"github.com/jbpratt78/vimoir/internal/netbeans"
	"github.com/jbpratt78/vimoir/internal/process"
	"github.com/jbpratt78/vimoir/internal/speech"
	"github.com/jbpratt78/vimoir/internal/transcript"
	"github.com/jbpratt78/vimoir/internal/watch"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "wait for Vim to connect and serve its netbeans session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			tf, err := createLogFile("vimoir")
			if err != nil {
				return err
			}
			defer tf.Close()
			var logw io.Writer = tf
			if a.tail {
				logw = io.MultiWriter(tf, a.stderr)
			}
			log := newLogger(logw, a.verbose)

			srv, cleanup, err := newServer(c, a.stdout, log)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := srv.Listen(); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "vimoir listening on %v, logging to %v\n", srv.Addr(), tf.Name())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx)
		},
	}
}

// newServer wires the application to a netbeans server. cleanup releases
// the resources of the application once the server has stopped.
func newServer(c config.Config, stdout io.Writer, log *slog.Logger) (srv *netbeans.Server, cleanup func(), err error) {
	sp := speech.New(c.Speech.Command, stdout, log)
	runner := process.NewRunner(c.ProcessConfig(), log)
	var w *watch.Watcher
	if c.Watch {
		w, err = watch.New(log)
		if err != nil {
			log.Warn("file watcher unavailable", "error", err)
			w = nil
		}
	}
	cleanup = func() {
		runner.Close()
		if w != nil {
			w.Close()
		}
		sp.Close()
	}

	v := newVimstate(sp, runner, w, log)
	srv, err = netbeans.NewServer(c.Netbeans(), v, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if c.Transcript != "" {
		srv.NewRecorder = func(id string) (netbeans.Recorder, error) {
			tw, err := transcript.Create(c.Transcript, id)
			if err != nil {
				return nil, err
			}
			return tw, nil
		}
	}
	return srv, cleanup, nil
}
