package ipset

import (
	"syscall"
	"testing"

	"github.com/delciotorres/pyroute2/netlink"
	"github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		cmd   uint8
		errno int
		kind  Kind
	}{
		{IPSET_CMD_DESTROY, int(syscall.ENOENT), NotFound},
		{IPSET_CMD_CREATE, int(syscall.EEXIST), AlreadyExists},
		{IPSET_CMD_ADD, IPSET_ERR_EXIST, AlreadyExists},
		{IPSET_CMD_DEL, IPSET_ERR_EXIST, NotFound},
		{IPSET_CMD_TEST, IPSET_ERR_EXIST, NotFound},
		{IPSET_CMD_RENAME, IPSET_ERR_EXIST_SETNAME2, AlreadyExists},
		{IPSET_CMD_SWAP, IPSET_ERR_EXIST_SETNAME2, NotFound},
		{IPSET_CMD_SWAP, IPSET_ERR_TYPE_MISMATCH, TypeMismatch},
		{IPSET_CMD_DESTROY, IPSET_ERR_BUSY, Busy},
		{IPSET_CMD_RENAME, IPSET_ERR_REFERENCED, Busy},
		{IPSET_CMD_ADD, IPSET_ERR_HASH_FULL, CapacityExceeded},
		{IPSET_CMD_CREATE, IPSET_ERR_MAX_SETS, CapacityExceeded},
		{IPSET_CMD_CREATE, IPSET_ERR_FIND_TYPE, Unsupported},
		{IPSET_CMD_LIST, IPSET_ERR_PROTOCOL, ProtocolMismatch},
		{IPSET_CMD_ADD, IPSET_ERR_INVALID_CIDR, KernelRejected},
		{IPSET_CMD_ADD, int(syscall.EPERM), KernelRejected},
	}

	for _, test := range tests {
		if kind := KindOf(test.cmd, test.errno); kind != test.kind {
			t.Errorf("%s errno %d: got %s, expected %s", CommandName(test.cmd), test.errno, kind, test.kind)
		}
	}
}

func TestWrapError(t *testing.T) {
	err := wrapError(IPSET_CMD_DEL, "foo", &netlink.KernelError{Errno: IPSET_ERR_EXIST})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if errors.Is(err, ErrAlreadyExists) {
		t.Errorf("should not match AlreadyExists: %v", err)
	}
	if Errno(err) != IPSET_ERR_EXIST {
		t.Errorf("raw code not kept: %d", Errno(err))
	}
	if err.Error() != "ipset del foo: not found (errno 4103)" {
		t.Errorf("unexpected message: %s", err)
	}

	err = wrapError(IPSET_CMD_ADD, "foo", &netlink.KernelError{Errno: 4242})
	if !IsKind(err, KernelRejected) || Errno(err) != 4242 {
		t.Errorf("expected KernelRejected carrying 4242, got %v", err)
	}

	err = wrapError(IPSET_CMD_LIST, "", errors.Wrap(netlink.ErrSequenceMismatch, "got 3"))
	if !IsKind(err, ProtocolMismatch) {
		t.Errorf("expected ProtocolMismatch, got %v", err)
	}
	if errors.Cause(err) != netlink.ErrSequenceMismatch {
		t.Errorf("cause not reachable: %v", errors.Cause(err))
	}

	if !IsKind(wrapError(IPSET_CMD_ADD, "foo", netlink.ErrBusy), Busy) {
		t.Error("busy channel should be Busy")
	}
	if wrapError(IPSET_CMD_ADD, "foo", nil) != nil {
		t.Error("nil should stay nil")
	}
}
