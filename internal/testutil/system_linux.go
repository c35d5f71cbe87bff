//go:build linux

/*
Package testutil provides the test infrastructure of the ipset client.

Unit tests run against Kernel, an in-memory double of the ipset netlink
subsystem. Integration tests talk to the real kernel from inside a fresh
network namespace, so they never touch the sets of the host:

	sudo PRIVILEGED_TESTS=1 go test -v ./ipset/

Creating a network namespace and managing ipsets require CAP_SYS_ADMIN and
CAP_NET_ADMIN.
*/
package testutil

import (
	"os"
	"runtime"
	"testing"

	"github.com/delciotorres/pyroute2/ipset"
	"github.com/delciotorres/pyroute2/netlink"
	"github.com/vishvananda/netns"
)

// SkipIfNotPrivileged will skip the test from where it's invoked,
// to skip the test if we don't have root privileges.
// This may occur when executing the tests on restricted environments,
// such as containers, chroots, etc.
func SkipIfNotPrivileged(t *testing.T) {
	if os.Getenv("PRIVILEGED_TESTS") == "" {
		t.Skip("Set PRIVILEGED_TESTS to 1 to launch these tests, and launch them as root, or as a user allowed to create new namespaces.")
	}
}

// OpenSystemClient opens a client on the real kernel, inside a new network
// namespace, dialed with opts. The namespace and the client are released
// when the test ends.
func OpenSystemClient(t *testing.T, opts ...netlink.DialOpt) *ipset.Client {
	t.Helper()
	// namespace operations are thread-local, so the goroutine stays on this
	// thread until the cleanup restores the original namespace.
	runtime.LockOSThread()

	orig, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		t.Fatalf("netns.Get() failed: %v", err)
	}
	ns, err := netns.New()
	if err != nil {
		orig.Close()
		runtime.UnlockOSThread()
		t.Fatalf("netns.New() failed: %v", err)
	}
	t.Cleanup(func() {
		defer runtime.UnlockOSThread()
		if err := netns.Set(orig); err != nil {
			t.Errorf("netns.Set() failed: %v", err)
		}
		orig.Close()
		if err := ns.Close(); err != nil {
			t.Errorf("ns.Close() failed: %v", err)
		}
	})
	t.Log("OpenSystemClient() with NS:", ns)

	c, err := ipset.Open(opts...)
	if err != nil {
		t.Fatalf("ipset.Open() failed: %v", err)
	}
	// cleanups run last-in first-out: the socket is closed inside the
	// namespace, before it's left.
	t.Cleanup(func() { c.Close() })
	return c
}
