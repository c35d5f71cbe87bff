package netlink

import (
	"sync"
	"sync/atomic"

	"github.com/delciotorres/pyroute2/log"
	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by requests on a closed channel.
	ErrClosed = errors.New("netlink channel closed")
	// ErrBusy is returned when a request is issued while another one is
	// still being answered.
	ErrBusy = errors.New("netlink channel busy")
	// ErrSequenceMismatch is returned when a reply does not answer the
	// outstanding request.
	ErrSequenceMismatch = errors.New("netlink sequence mismatch")
)

// Transport moves raw datagrams to and from the kernel.
type Transport interface {
	Send(b []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Conn numbers requests and allows a single outstanding request at a time.
type Conn struct {
	t    Transport
	seq  uint32
	busy int32

	mu     sync.Mutex
	closed bool
}

// NewConn wraps a transport.
func NewConn(t Transport) *Conn {
	return &Conn{t: t}
}

// Request sends an ipset command and returns the iterator over its replies.
// The channel stays busy until the iterator is exhausted or closed.
func (c *Conn) Request(cmd uint8, flags netlink.HeaderFlags, attrs ...*attr.Node) (*Replies, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&c.busy, 0, 1) {
		return nil, ErrBusy
	}

	seq := atomic.AddUint32(&c.seq, 1)
	b, err := Frame(cmd, flags|FlagRequest, seq, attrs...)
	if err != nil {
		c.release()
		return nil, err
	}

	log.Debug("ipset request cmd=%d seq=%d flags=%s len=%d", cmd, seq, flags, len(b))
	if err := c.t.Send(b); err != nil {
		c.release()
		c.Close()
		return nil, errors.Wrap(err, "netlink send")
	}

	return &Replies{
		conn:   c,
		cmd:    cmd,
		seq:    seq,
		single: flags&(FlagAck|FlagDump) == 0,
	}, nil
}

// Execute sends a command and collects every data message of the reply.
func (c *Conn) Execute(cmd uint8, flags netlink.HeaderFlags, attrs ...*attr.Node) ([]*attr.Node, error) {
	r, err := c.Request(cmd, flags, attrs...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []*attr.Node
	for r.Next() {
		out = append(out, r.Tree())
	}
	return out, r.Err()
}

// Close closes the underlying transport. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.t.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) release() {
	atomic.StoreInt32(&c.busy, 0)
}

// Replies iterates lazily over the messages answering one request.
// It is finite and cannot be restarted.
type Replies struct {
	conn    *Conn
	cmd     uint8
	seq     uint32
	single  bool
	pending []netlink.Message
	cur     *attr.Node
	err     error
	done    bool
}

// Next reads the next data message, returning false at the end of the
// exchange or on error.
func (r *Replies) Next() bool {
	r.cur = nil
	for !r.done {
		if len(r.pending) == 0 {
			b, err := r.conn.t.Receive()
			if err != nil {
				r.abort(errors.Wrap(err, "netlink receive"))
				return false
			}
			msgs, err := ParseMessages(b)
			if err != nil {
				r.abort(err)
				return false
			}
			r.pending = msgs
			continue
		}

		m := r.pending[0]
		r.pending = r.pending[1:]
		if m.Header.Sequence != r.seq {
			r.abort(errors.Wrapf(ErrSequenceMismatch, "got %d, expected %d", m.Header.Sequence, r.seq))
			return false
		}

		p, err := Decode(m)
		if err != nil {
			r.abort(err)
			return false
		}
		switch {
		case p.Done:
			r.finish(nil)
			return false
		case p.Ack && p.Errno != 0:
			r.finish(&KernelError{Errno: p.Errno})
			return false
		case p.Ack:
			r.finish(nil)
			return false
		}

		r.cur = p.Attrs
		if r.single {
			r.finish(nil)
		}
		return true
	}
	return false
}

// Tree returns the attributes of the current data message.
func (r *Replies) Tree() *attr.Node {
	return r.cur
}

// Err returns the error that ended the iteration, if any.
func (r *Replies) Err() error {
	return r.err
}

// Close ends the exchange. Abandoning it before the end closes the channel,
// since the remaining replies cannot be told apart from later ones.
func (r *Replies) Close() error {
	if r.done {
		return nil
	}
	r.finish(nil)
	log.Debug("ipset request cmd=%d seq=%d abandoned, closing channel", r.cmd, r.seq)
	return r.conn.Close()
}

func (r *Replies) finish(err error) {
	if r.done {
		return
	}
	r.done = true
	r.err = err
	r.pending = nil
	r.conn.release()
}

// abort ends the exchange on a transport or framing failure. The channel
// is left in an unknown state, so it is closed.
func (r *Replies) abort(err error) {
	r.finish(err)
	r.conn.Close()
}
