//go:build !linux

package netlink

// Socket is a NETLINK_NETFILTER socket.
type Socket struct{}

// Dial always fails outside linux.
func Dial(opts ...DialOpt) (*Socket, error) {
	return nil, ErrOsUnsupported
}

// Send is not supported.
func (s *Socket) Send(b []byte) error {
	return ErrOsUnsupported
}

// Receive is not supported.
func (s *Socket) Receive() ([]byte, error) {
	return nil, ErrOsUnsupported
}

// Close is a no-op.
func (s *Socket) Close() error {
	return nil
}
