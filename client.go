package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/jbpratt78/vimoir/internal/netbeans"
)

// editorCmd is a scripted stand-in for Vim: it connects to a server, sends
// the handshake and then each line read from stdin. The lines received from
// the server are printed on stdout.
func (a *app) editorCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "editor",
		Short: "connect to a server as a netbeans editor, sending lines from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = c.Addr()
			}
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return xerrors.Errorf("failed to dial server: %w", err)
			}
			defer conn.Close()
			return runEditor(conn, c.Password, a.stdin, a.stdout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address, host:port from the configuration by default")
	return cmd
}

func runEditor(conn net.Conn, password string, in io.Reader, out io.Writer) error {
	errc := make(chan error, 1)
	go func() {
		errc <- sendLines(conn, password, in)
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fmt.Fprintln(out, strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return xerrors.Errorf("failed to read from server: %w", err)
		}
	}
	select {
	case err := <-errc:
		return err
	default:
		// the server closed the connection before stdin was exhausted
		return nil
	}
}

func sendLines(w io.Writer, password string, in io.Reader) error {
	seqno := 0
	send := func(line string) error {
		_, err := io.WriteString(w, line+"\n")
		return err
	}
	handshake := []string{
		"AUTH " + password,
		"0:version=0 " + netbeans.Quote("2.5"),
		"0:startupDone=0",
	}
	for _, l := range handshake {
		if err := send(l); err != nil {
			return err
		}
	}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		seqno++
		if err := send(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	seqno++
	return send(fmt.Sprintf("0:disconnect=%d", seqno))
}
