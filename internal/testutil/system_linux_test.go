//go:build linux

package testutil

import (
	"runtime"
	"testing"

	"github.com/delciotorres/pyroute2/netlink"
	"github.com/vishvananda/netns"
)

func TestOpenSystemClient(t *testing.T) {
	SkipIfNotPrivileged(t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	orig, err := netns.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer orig.Close()

	t.Run("namespace", func(t *testing.T) {
		c := OpenSystemClient(t, netlink.OptBufferSize(1<<16))
		cur, err := netns.Get()
		if err != nil {
			t.Fatal(err)
		}
		defer cur.Close()
		if cur.Equal(orig) {
			t.Fatal("client opened in the original namespace")
		}
		if _, _, err := c.Protocol(); err != nil {
			t.Errorf("Protocol() failed: %v", err)
		}
		// the namespace and the socket are released by the cleanups,
		// which run after this function returns
	})

	after, err := netns.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer after.Close()
	if !after.Equal(orig) {
		t.Errorf("namespace not restored: %s, expected %s", after, orig)
	}
}
