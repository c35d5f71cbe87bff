package netlink

import (
	"strings"
	"syscall"

	"github.com/delciotorres/pyroute2/log"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Socket is a NETLINK_NETFILTER socket.
type Socket struct {
	s   *nl.NetlinkSocket
	buf []byte
}

// Dial opens a NETLINK_NETFILTER socket, optionally inside another network
// namespace.
func Dial(opts ...DialOpt) (*Socket, error) {
	o := dialOptions{bufferSize: nl.RECEIVE_BUFFER_SIZE}
	for _, opt := range opts {
		opt(&o)
	}

	newNs, curNs := netns.None(), netns.None()
	if o.netns != "" {
		var err error
		if newNs, err = getNs(o.netns); err != nil {
			return nil, errors.Wrapf(err, "netns %s", o.netns)
		}
		defer newNs.Close()
		if curNs, err = netns.Get(); err != nil {
			return nil, errors.Wrap(err, "current netns")
		}
		defer curNs.Close()
	}

	s, err := nl.GetNetlinkSocketAt(newNs, curNs, syscall.NETLINK_NETFILTER)
	if err != nil {
		return nil, errors.Wrap(err, "netfilter socket")
	}
	if o.recvTimeout > 0 {
		tv := unix.NsecToTimeval(o.recvTimeout.Nanoseconds())
		if err := s.SetReceiveTimeout(&tv); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "receive timeout")
		}
	}
	log.Debug("netfilter socket opened, netns: %q", o.netns)

	return &Socket{s: s, buf: make([]byte, o.bufferSize)}, nil
}

func getNs(ns string) (netns.NsHandle, error) {
	if strings.HasPrefix(ns, "/") {
		return netns.GetFromPath(ns)
	}
	return netns.GetFromName(ns)
}

// Send writes one datagram to the kernel.
func (s *Socket) Send(b []byte) error {
	return unix.Sendto(s.s.GetFd(), b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

// Receive reads one datagram sent by the kernel.
func (s *Socket) Receive() ([]byte, error) {
	for {
		n, from, err := unix.Recvfrom(s.s.GetFd(), s.buf, 0)
		if err != nil {
			return nil, err
		}
		if sa, ok := from.(*unix.SockaddrNetlink); !ok || sa.Pid != 0 {
			// not from the kernel
			continue
		}
		if n < sizeofNlmsghdr {
			return nil, errors.Wrapf(ErrTruncated, "short read: %d bytes", n)
		}
		b := make([]byte, n)
		copy(b, s.buf[:n])
		return b, nil
	}
}

// Close closes the socket.
func (s *Socket) Close() error {
	s.s.Close()
	return nil
}
