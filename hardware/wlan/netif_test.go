package wlan

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/log2"
)

func TestNetifStatus(t *testing.T) {
	t.Parallel()

	up := &net.Interface{Name: "wlan0", Flags: net.FlagUp}
	down := &net.Interface{Name: "wlan0"}
	ipnet := func(s string) net.Addr {
		_, n, _ := net.ParseCIDR(s)
		n.IP = net.ParseIP(s[:len(s)-3])
		return n
	}
	type Case struct {
		name   string
		iface  *net.Interface
		addrs  []net.Addr
		err    error
		active bool
		expect network.RadioStatus
	}
	cases := []Case{
		{"connected", up, []net.Addr{ipnet("192.168.1.5/24")}, nil, true, network.RadioConnected},
		{"link-local", up, []net.Addr{ipnet("169.254.3.4/16")}, nil, true, network.RadioConnecting},
		{"no-addr-idle", up, nil, nil, false, network.RadioIdle},
		{"down-connecting", down, nil, nil, true, network.RadioConnecting},
		{"missing", nil, nil, fmt.Errorf("no such network interface"), true, network.RadioConnectFail},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			n := NewNetif("")
			n.lookup = func(string) (*net.Interface, []net.Addr, error) { return c.iface, c.addrs, c.err }
			n.active = c.active
			assert.Equal(t, c.expect, n.Status())
		})
	}
}

func TestNetifConnect(t *testing.T) {
	t.Parallel()

	n := NewNetif("wlan9")
	n.lookup = func(name string) (*net.Interface, []net.Addr, error) {
		return nil, nil, fmt.Errorf("route ip+net: no such network interface")
	}
	err := n.Connect("ssid", "pass")
	assert.Contains(t, err.Error(), "interface=wlan9")

	n.lookup = func(name string) (*net.Interface, []net.Addr, error) {
		return &net.Interface{Name: name}, nil, nil
	}
	assert.NoError(t, n.Connect("ssid", "pass"))
	assert.Equal(t, network.RadioConnecting, n.Status())
	assert.NoError(t, n.Disconnect())
	assert.Equal(t, network.RadioIdle, n.Status())
}

func TestNetifRejectedPasswordTimesOut(t *testing.T) {
	t.Parallel()

	// supplicant keeps retrying bad credentials, interface stays up without address
	n := NewNetif("wlan0")
	n.lookup = func(name string) (*net.Interface, []net.Addr, error) {
		return &net.Interface{Name: name, Flags: net.FlagUp}, nil, nil
	}
	clock := helpers.NewFakeClock(time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC))
	s := network.NewSession(log2.NewTest(t, log2.LDebug), network.Config{
		SSID:           "home",
		Password:       "wrong",
		ConnectTimeout: time.Second,
		PollStep:       250 * time.Millisecond,
	}, n, clock, &helpers.MockHTTP{})
	err := s.Connect(context.Background())
	le, ok := network.AsLinkError(err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, network.ErrorTimeout, le.Kind)
	assert.Equal(t, network.LinkDisconnected, s.State())
}
