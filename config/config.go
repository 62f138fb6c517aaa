// Package config defines the vimoir configuration file and the names of the
// commands vimoir understands.
package config

import (
	_ "embed"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/jbpratt78/vimoir/internal/netbeans"
	"github.com/jbpratt78/vimoir/internal/process"
)

// Command is the first word of a :nbkey key string.
type Command string

const (
	// CommandSpeak speaks the rest of the key string
	CommandSpeak Command = "speak"

	// CommandQuit stops the server once the editor disconnects
	CommandQuit Command = "quit"

	// CommandRun runs the rest of the key string as a process and shows its
	// output in a balloon
	CommandRun Command = "run"

	// CommandCursor speaks the cursor position reported by the editor
	CommandCursor Command = "cursor"
)

// Mode is the deployment mode of the server.
type Mode string

const (
	// ModeOneshot serves a single editor session and exits.
	ModeOneshot Mode = "oneshot"

	// ModeReopen accepts a new editor once the previous one has gone.
	ModeReopen Mode = "reopen"
)

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "vimoir.yaml"

//go:embed schema.json
var schema string

// Config is the contents of the vimoir configuration file.
type Config struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	Password         string   `yaml:"password"`
	Encoding         string   `yaml:"encoding"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	TickInterval     Duration `yaml:"tick_interval"`
	Mode             Mode     `yaml:"mode"`
	BufferIDPolicy   string   `yaml:"buffer_id_policy"`

	// Transcript is the file recording the wire lines of every session. An
	// empty value disables the transcript.
	Transcript string `yaml:"transcript"`

	// Watch reports changes made on disk to the files open in the editor.
	Watch bool `yaml:"watch"`

	Process Process `yaml:"process"`
	Speech  Speech  `yaml:"speech"`
}

type Process struct {
	PTY        bool     `yaml:"pty"`
	MaxWorkers int64    `yaml:"max_workers"`
	Timeout    Duration `yaml:"timeout"`
}

type Speech struct {
	// Command is the text-to-speech command; the text is appended as its
	// last argument. When empty the text is printed on stdout.
	Command []string `yaml:"command,omitempty"`
}

// Defaults returns the configuration used for options missing from the
// configuration file.
func Defaults() Config {
	return Config{
		Port:             3219,
		Password:         "changeme",
		Encoding:         "UTF-8",
		HandshakeTimeout: Duration(netbeans.DefaultHandshakeTimeout),
		TickInterval:     Duration(netbeans.DefaultTickInterval),
		Mode:             ModeOneshot,
		BufferIDPolicy:   string(netbeans.BufferIDFatal),
		Watch:            true,
		Process: Process{
			MaxWorkers: process.DefaultMaxWorkers,
			Timeout:    Duration(process.DefaultTimeout),
		},
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Config{}, xerrors.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a configuration document.
func Parse(data []byte) (Config, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, xerrors.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Config{}, xerrors.Errorf("failed to validate config: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Config{}, xerrors.Errorf("invalid config: %v", strings.Join(msgs, "; "))
	}

	c := Defaults()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, xerrors.Errorf("failed to decode config: %w", err)
	}
	if err := c.Check(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Check reports the values the schema cannot express.
func (c Config) Check() error {
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Errorf("invalid port %d", c.Port)
	}
	if c.Password == "" || strings.ContainsAny(c.Password, " \t\r\n") {
		return xerrors.Errorf("the password must be a single non-empty word")
	}
	for name, d := range map[string]Duration{
		"handshake_timeout": c.HandshakeTimeout,
		"tick_interval":     c.TickInterval,
		"process.timeout":   c.Process.Timeout,
	} {
		if d <= 0 {
			return xerrors.Errorf("%v must be positive, got %v", name, d)
		}
	}
	return nil
}

// Addr is the address the server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Netbeans returns the options of the netbeans server.
func (c Config) Netbeans() netbeans.Config {
	return netbeans.Config{
		Addr:             c.Addr(),
		Password:         c.Password,
		Encoding:         c.Encoding,
		HandshakeTimeout: time.Duration(c.HandshakeTimeout),
		TickInterval:     time.Duration(c.TickInterval),
		Reopen:           c.Mode == ModeReopen,
		BufferIDPolicy:   netbeans.BufferIDPolicy(c.BufferIDPolicy),
	}
}

// ProcessConfig returns the options of the run command.
func (c Config) ProcessConfig() process.Config {
	return process.Config{
		PTY:        c.Process.PTY,
		MaxWorkers: c.Process.MaxWorkers,
		Timeout:    time.Duration(c.Process.Timeout),
	}
}

// YAML returns c as a configuration document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Duration is a time.Duration written as a string such as "200ms".
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return xerrors.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}
