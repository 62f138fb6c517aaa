package netbeans

import (
	"log/slog"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"
)

// ChunkSize is the largest write issued on the socket, unless a single
// message is larger.
const ChunkSize = 4096

// Queue holds encoded outgoing messages until the writer goroutine drains
// them onto the socket. Messages are only accepted once the session is
// ready. It is safe for concurrent use.
type Queue struct {
	log *slog.Logger

	mu     sync.Mutex
	enc    *encoding.Encoder
	msgs   [][]byte
	ready  bool
	closed bool

	// notify has a buffer of one; a pending value means there is something
	// to drain.
	notify chan struct{}
}

func NewQueue(enc encoding.Encoding, log *slog.Logger) *Queue {
	return &Queue{
		log:    log,
		enc:    enc.NewEncoder(),
		notify: make(chan struct{}, 1),
	}
}

// SetReady opens the queue once the handshake has completed.
func (q *Queue) SetReady() {
	q.mu.Lock()
	q.ready = true
	q.mu.Unlock()
}

// Enqueue encodes msg, which must be newline terminated, and appends it to
// the queue.
func (q *Queue) Enqueue(msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if !q.ready {
		q.log.Warn("dropping message sent before startupDone", "msg", msg)
		return ErrNotReady
	}
	b, err := q.enc.Bytes([]byte(msg))
	if err != nil {
		return xerrors.Errorf("failed to encode %q: %w", msg, err)
	}
	q.msgs = append(q.msgs, b)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Ready returns a channel that receives a value after messages have been
// enqueued.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// Next removes and returns the next chunk to write: as many whole messages as
// fit in max bytes, and at least one message. It returns nil when the queue
// is empty.
func (q *Queue) Next(max int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil
	}
	n, size := 0, 0
	for n < len(q.msgs) && (n == 0 || size+len(q.msgs[n]) <= max) {
		size += len(q.msgs[n])
		n++
	}
	var chunk []byte
	if n == 1 {
		chunk = q.msgs[0]
	} else {
		chunk = make([]byte, 0, size)
		for _, m := range q.msgs[:n] {
			chunk = append(chunk, m...)
		}
	}
	for i := 0; i < n; i++ {
		q.msgs[i] = nil
	}
	q.msgs = q.msgs[n:]
	return chunk
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Close discards pending messages; later calls to Enqueue fail with
// ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.msgs = nil
	q.mu.Unlock()
}
