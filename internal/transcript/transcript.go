// Package transcript records the lines exchanged with the editor as a stream
// of CBOR records, one stream per file, any number of sessions per stream.
package transcript

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// Record is one wire line.
type Record struct {
	Session string    `cbor:"session"`
	Time    time.Time `cbor:"time"`
	Dir     string    `cbor:"dir"`
	Line    string    `cbor:"line"`
}

// encMode keeps sub-second timestamps.
var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Writer appends the records of one session. It is safe for concurrent use.
type Writer struct {
	session string

	mu  sync.Mutex
	wc  io.WriteCloser
	enc *cbor.Encoder

	now func() time.Time
}

// Create opens, creating it if needed, the transcript file at path for
// appending the records of session.
func Create(path, session string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, xerrors.Errorf("failed to open transcript: %w", err)
	}
	return NewWriter(f, session), nil
}

func NewWriter(wc io.WriteCloser, session string) *Writer {
	return &Writer{
		session: session,
		wc:      wc,
		enc:     encMode.NewEncoder(wc),
		now:     time.Now,
	}
}

// Record appends a record for line, sent in direction dir.
func (w *Writer) Record(dir, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wc == nil {
		return xerrors.New("transcript closed")
	}
	r := Record{
		Session: w.session,
		Time:    w.now(),
		Dir:     dir,
		Line:    line,
	}
	if err := w.enc.Encode(r); err != nil {
		return xerrors.Errorf("failed to write transcript record: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wc == nil {
		return nil
	}
	err := w.wc.Close()
	w.wc = nil
	return err
}

// Reader decodes the records of a transcript stream.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return rec, io.EOF
		}
		return rec, xerrors.Errorf("failed to decode transcript record: %w", err)
	}
	return rec, nil
}

// ReadAll returns all the records of a stream.
func ReadAll(r io.Reader) ([]Record, error) {
	tr := NewReader(r)
	var res []Record
	for {
		rec, err := tr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res = append(res, rec)
	}
}
