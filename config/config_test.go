package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbpratt78/vimoir/internal/netbeans"
)

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "vimoir.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
	assert.Equal(t, ":3219", c.Addr())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
host: 127.0.0.1
port: 4000
password: secret
encoding: latin1
tick_interval: 50ms
mode: reopen
buffer_id_policy: ignore
watch: false
process:
  pty: true
speech:
  command: [espeak, -s, "150"]
`))
	require.NoError(t, err)

	want := Defaults()
	want.Host = "127.0.0.1"
	want.Port = 4000
	want.Password = "secret"
	want.Encoding = "latin1"
	want.TickInterval = Duration(50 * time.Millisecond)
	want.Mode = ModeReopen
	want.BufferIDPolicy = "ignore"
	want.Watch = false
	want.Process.PTY = true
	want.Speech.Command = []string{"espeak", "-s", "150"}
	if diff := pretty.Diff(want, c); len(diff) > 0 {
		t.Fatalf("config differs:\n%v", diff)
	}

	assert.Equal(t, netbeans.Config{
		Addr:             "127.0.0.1:4000",
		Password:         "secret",
		Encoding:         "latin1",
		HandshakeTimeout: netbeans.DefaultHandshakeTimeout,
		TickInterval:     50 * time.Millisecond,
		Reopen:           true,
		BufferIDPolicy:   netbeans.BufferIDIgnore,
	}, c.Netbeans())
	assert.Equal(t, int64(4), c.ProcessConfig().MaxWorkers)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestParseInvalid(t *testing.T) {
	for _, doc := range []string{
		"port: 70000",
		"port: nope",
		"mode: sometimes",
		"buffer_id_policy: maybe",
		"password: two words",
		"unknown: 1",
		"process: {max_workers: 0}",
		"tick_interval: soon",
		"tick_interval: 0s",
		"speech: {command: espeak}",
		"- a list",
		"host: [",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, "document %q", doc)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := Defaults().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick_interval: 200ms\n")
	c, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestLoadUnreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)

	path := filepath.Join(dir, "vimoir.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 1234\n"), 0644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, c.Port)
}
