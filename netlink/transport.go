package netlink

import (
	"time"

	"github.com/pkg/errors"
)

// ErrOsUnsupported is returned by Dial on platforms without netfilter.
var ErrOsUnsupported = errors.New("ipset netlink is only supported on linux")

type dialOptions struct {
	netns       string
	recvTimeout time.Duration
	bufferSize  int
}

// DialOpt configures Dial.
type DialOpt func(*dialOptions)

// OptNetns opens the socket inside a network namespace, given either a path
// (/proc/<pid>/ns/net, /var/run/netns/<name>) or a name.
func OptNetns(ns string) DialOpt {
	return func(o *dialOptions) {
		o.netns = ns
	}
}

// OptReceiveTimeout bounds every receive on the socket.
func OptReceiveTimeout(d time.Duration) DialOpt {
	return func(o *dialOptions) {
		o.recvTimeout = d
	}
}

// OptBufferSize sets the receive buffer size.
func OptBufferSize(size int) DialOpt {
	return func(o *dialOptions) {
		o.bufferSize = size
	}
}
