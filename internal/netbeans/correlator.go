package netbeans

import (
	"sync"
)

// Reply is the editor's answer to a function.
type Reply struct {
	Seqno int

	// Str is the netbeans string of the reply, when HasStr is true.
	Str    string
	HasStr bool

	Args []string
}

// An Observer is called on the reactor goroutine with the reply to a
// function. It must not block.
type Observer func(r Reply)

type pendingRequest struct {
	seqno    int
	observer Observer
}

// Correlator numbers outgoing requests and matches replies to pending
// functions. The editor answers functions in the order they were sent, so
// pending functions are kept in a FIFO and a reply must always match the
// oldest one.
type Correlator struct {
	mu      sync.Mutex
	seqno   int
	pending []pendingRequest

	// last is the sequence number of the last reply that was matched.
	last int
}

// Send allocates the next sequence number and calls write with it. When
// write succeeds the number is consumed and, for a function (observer is not
// nil), a pending request is queued. write is called with the lock held so
// that requests reach the output queue in sequence number order.
func (c *Correlator) Send(observer Observer, write func(seqno int) error) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqno := c.seqno + 1
	if err := write(seqno); err != nil {
		return 0, err
	}
	c.seqno = seqno
	if observer != nil {
		c.pending = append(c.pending, pendingRequest{seqno: seqno, observer: observer})
	}
	return seqno, nil
}

// Match pops the pending function that the reply numbered seqno answers.
// A repeat of the last matched reply is reported with dup set; the editor may
// send one reply twice. A reply that does not answer the oldest pending
// function is a protocol violation.
func (c *Correlator) Match(seqno int) (observer Observer, dup bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seqno == c.last {
		return nil, true, nil
	}
	if len(c.pending) == 0 {
		return nil, false, &ProtocolError{Msg: "got a reply with no matching function request"}
	}
	p := c.pending[0]
	if p.seqno != seqno {
		return nil, false, protocolErrorf("", "got reply %d while waiting for reply %d", seqno, p.seqno)
	}
	c.pending[0] = pendingRequest{}
	c.pending = c.pending[1:]
	c.last = seqno
	return p.observer, false, nil
}

// Pending returns the number of functions awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Drop forgets all pending functions; their observers are never called.
func (c *Correlator) Drop() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	c.pending = nil
	return n
}
