// Package wlan reports association of OS managed wireless interface.
// Supplicant (wpa_supplicant, NetworkManager) owns credentials and roaming,
// so Connect only records requested network and waits for interface address.
// Status never reports wrong password: on real hardware rejected credentials
// look like no association, and Session.Connect fails with Timeout.
package wlan

import (
	"net"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/internal/network"
)

const DefaultInterface = "wlan0"

type ifaceLookup func(name string) (*net.Interface, []net.Addr, error)

type Netif struct {
	name   string
	ssid   string
	lookup ifaceLookup
	active bool
}

var _ network.Radio = &Netif{}

func NewNetif(name string) *Netif {
	if name == "" {
		name = DefaultInterface
	}
	return &Netif{name: name, lookup: osLookup}
}

func (self *Netif) Connect(ssid, password string) error {
	if _, _, err := self.lookup(self.name); err != nil {
		return errors.Annotatef(err, "interface=%s", self.name)
	}
	self.ssid = ssid
	self.active = true
	return nil
}

func (self *Netif) Status() network.RadioStatus {
	iface, addrs, err := self.lookup(self.name)
	if err != nil {
		return network.RadioConnectFail
	}
	if iface.Flags&net.FlagUp == 0 {
		if self.active {
			return network.RadioConnecting
		}
		return network.RadioIdle
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil && !ipn.IP.IsLinkLocalUnicast() {
			return network.RadioConnected
		}
	}
	if self.active {
		return network.RadioConnecting
	}
	return network.RadioIdle
}

func (self *Netif) Disconnect() error {
	self.active = false
	return nil
}

func osLookup(name string) (*net.Interface, []net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, err
	}
	return iface, addrs, nil
}
