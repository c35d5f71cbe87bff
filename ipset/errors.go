package ipset

import (
	"fmt"
	"syscall"

	"github.com/delciotorres/pyroute2/netlink"
	"github.com/pkg/errors"
)

// Kind classifies every failure of the client.
//
// Busy covers both the kernel refusing an operation on a set in use and
// the client refusing a call while a listing still owns the channel. The
// latter carries no errno, and errors.Cause(err) == netlink.ErrBusy tells
// it apart.
type Kind int

// Failure kinds.
const (
	KernelRejected Kind = iota
	AlreadyExists
	NotFound
	CapacityExceeded
	Busy
	TypeMismatch
	ProtocolMismatch
	Unsupported
)

var kindNames = map[Kind]string{
	KernelRejected:   "rejected by kernel",
	AlreadyExists:    "already exists",
	NotFound:         "not found",
	CapacityExceeded: "capacity exceeded",
	Busy:             "busy",
	TypeMismatch:     "type mismatch",
	ProtocolMismatch: "protocol mismatch",
	Unsupported:      "unsupported",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Sentinels to match with errors.Is.
var (
	ErrKernelRejected   error = KernelRejected
	ErrAlreadyExists    error = AlreadyExists
	ErrNotFound         error = NotFound
	ErrCapacityExceeded error = CapacityExceeded
	ErrBusy             error = Busy
	ErrTypeMismatch     error = TypeMismatch
	ErrProtocolMismatch error = ProtocolMismatch
	ErrUnsupported      error = Unsupported
)

// Error is returned by every operation of the Client.
type Error struct {
	Op   string
	Set  string
	Kind Kind
	// Errno is the raw code answered by the kernel, 0 when the failure did
	// not come from the kernel.
	Errno int
	Err   error
}

func (e *Error) Error() string {
	msg := "ipset " + e.Op
	if e.Set != "" {
		msg += " " + e.Set
	}
	msg += ": " + e.Kind.String()
	if e.Errno != 0 {
		msg += fmt.Sprintf(" (errno %d)", e.Errno)
	}
	if e.Err != nil && e.Errno == 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying error, for github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.Err }

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// IsKind reports whether err is an *Error of the given kind. It doesn't
// tell where the failure came from: use Errno for the kernel code, or
// errors.Cause for client side failures such as netlink.ErrBusy.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Errno returns the raw kernel code carried by err, or 0.
func Errno(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno
	}
	return 0
}

var errnoKinds = map[int]Kind{
	int(syscall.ENOENT):              NotFound,
	int(syscall.EEXIST):              AlreadyExists,
	int(syscall.EBUSY):               Busy,
	int(syscall.EPROTONOSUPPORT):     Unsupported,
	int(syscall.EOPNOTSUPP):          Unsupported,
	IPSET_ERR_PROTOCOL:               ProtocolMismatch,
	IPSET_ERR_FIND_TYPE:              Unsupported,
	IPSET_ERR_MAX_SETS:               CapacityExceeded,
	IPSET_ERR_BUSY:                   Busy,
	IPSET_ERR_EXIST_SETNAME2:         AlreadyExists,
	IPSET_ERR_TYPE_MISMATCH:          TypeMismatch,
	IPSET_ERR_EXIST:                  AlreadyExists,
	IPSET_ERR_REFERENCED:             Busy,
	IPSET_ERR_HASH_FULL:              CapacityExceeded,
	IPSET_ERR_HASH_RANGE_UNSUPPORTED: Unsupported,
}

type cmdErrno struct {
	cmd   uint8
	errno int
}

// The same code means different things depending on the command.
var commandErrnoKinds = map[cmdErrno]Kind{
	{IPSET_CMD_DEL, IPSET_ERR_EXIST}:           NotFound,
	{IPSET_CMD_TEST, IPSET_ERR_EXIST}:          NotFound,
	{IPSET_CMD_SWAP, IPSET_ERR_EXIST_SETNAME2}: NotFound,
}

// KindOf maps a kernel error code answered to cmd.
func KindOf(cmd uint8, errno int) Kind {
	if k, ok := commandErrnoKinds[cmdErrno{cmd, errno}]; ok {
		return k
	}
	if k, ok := errnoKinds[errno]; ok {
		return k
	}
	return KernelRejected
}

// wrapError classifies err, a failure of cmd on set.
func wrapError(cmd uint8, set string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	out := &Error{Op: CommandName(cmd), Set: set, Err: err}
	var kerr *netlink.KernelError
	switch {
	case errors.As(err, &kerr):
		out.Errno = kerr.Errno
		out.Kind = KindOf(cmd, kerr.Errno)
	case errors.Cause(err) == netlink.ErrBusy:
		out.Kind = Busy
	default:
		out.Kind = ProtocolMismatch
	}
	return out
}

// newError builds a failure that did not come from the kernel.
func newError(op, set string, kind Kind, format string, args ...interface{}) error {
	return &Error{Op: op, Set: set, Kind: kind, Err: errors.Errorf(format, args...)}
}
