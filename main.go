// Command vimoir is a netbeans server for Vim. It speaks what happens in the
// editor and runs commands on its behalf.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/config"
	"github.com/jbpratt78/vimoir/internal/netbeans"
	"github.com/jbpratt78/vimoir/internal/transcript"
)

const (
	// EnvLogfileTmpl is the template of the log file name. The first %v is
	// replaced with "vimoir", the second with the start time and a third
	// one, if any, with a random string.
	EnvLogfileTmpl = "VIMOIR_LOGFILE_TMPL"

	// EnvLogDir is the directory of the log file, the temp directory by
	// default.
	EnvLogDir = "VIMOIR_LOGDIR"
)

func main() {
	os.Exit(main1())
}

func main1() int {
	if err := mainerr(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// app holds the global flags and the standard streams of the command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
	tail       bool

	host     string
	port     int
	password string
}

func mainerr(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vimoir",
		Short:         "vimoir is a netbeans server for Vim",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultFile, "configuration file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")
	pf.BoolVar(&a.tail, "tail", false, "also write the log to stderr")
	pf.StringVar(&a.host, "host", "", "interface to listen on")
	pf.IntVar(&a.port, "port", 0, "port to listen on")
	pf.StringVar(&a.password, "password", "", "password expected from the editor")

	root.AddCommand(
		a.serveCmd(),
		a.configCmd(),
		a.transcriptCmd(),
		a.editorCmd(),
	)
	return root
}

// loadConfig reads the configuration file and applies the flags that were
// set on the command line.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load(a.configPath)
	if err != nil {
		return c, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Host = a.host
	}
	if flags.Changed("port") {
		c.Port = a.port
	}
	if flags.Changed("password") {
		c.Password = a.password
	}
	if err := c.Check(); err != nil {
		return c, err
	}
	return c, nil
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := c.YAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
}

func (a *app) transcriptCmd() *cobra.Command {
	var parse bool
	cmd := &cobra.Command{
		Use:   "transcript FILE",
		Short: "print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return printTranscript(a.stdout, f, parse)
		},
	}
	cmd.Flags().BoolVar(&parse, "parse", false, "show how inbound lines are parsed")
	return cmd
}

func printTranscript(w io.Writer, r io.Reader, parse bool) error {
	tr := transcript.NewReader(r)
	for {
		rec, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%v %v %-3v %v\n", rec.Time.Format("15:04:05.000"), rec.Session, rec.Dir, rec.Line)
		if !parse || rec.Dir != netbeans.Inbound {
			continue
		}
		m, err := netbeans.Parse(rec.Line)
		if err != nil {
			fmt.Fprintf(w, "\t%v\n", err)
			continue
		}
		fmt.Fprintf(w, "\t%v\n", pretty.Sprint(*m))
	}
}

// createLogFile creates the log file of this process from the
// VIMOIR_LOGFILE_TMPL template.
func createLogFile(prefix string) (*os.File, error) {
	var tf *os.File
	var err error
	dir := os.Getenv(EnvLogDir)
	if dir == "" {
		dir = os.TempDir()
	}
	logfiletmpl := os.Getenv(EnvLogfileTmpl)
	if logfiletmpl == "" {
		logfiletmpl = "%v_%v_%v"
	}
	logfiletmpl += ".log"
	logfiletmpl = strings.Replace(logfiletmpl, "%v", prefix, 1)
	logfiletmpl = strings.Replace(logfiletmpl, "%v", time.Now().Format("20060102_1504_05"), 1)
	if strings.Contains(logfiletmpl, "%v") {
		logfiletmpl = strings.Replace(logfiletmpl, "%v", "*", 1)
		tf, err = os.CreateTemp(dir, logfiletmpl)
	} else {
		// append to existing file
		tf, err = os.OpenFile(filepath.Join(dir, logfiletmpl), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	if err != nil {
		err = xerrors.Errorf("failed to create log file: %w", err)
	}
	return tf, err
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
