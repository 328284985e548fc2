package network

import "fmt"

type LinkState uint32

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDegraded
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "Disconnected"
	case LinkConnecting:
		return "Connecting"
	case LinkConnected:
		return "Connected"
	case LinkDegraded:
		return "Degraded"
	}
	return fmt.Sprintf("LinkState(%d)", s)
}

// RadioStatus is association status reported by wireless stack.
type RadioStatus uint8

const (
	RadioIdle RadioStatus = iota
	RadioConnecting
	RadioConnected
	RadioWrongPassword
	RadioNoAP
	RadioConnectFail
)

func (s RadioStatus) String() string {
	switch s {
	case RadioIdle:
		return "idle"
	case RadioConnecting:
		return "connecting"
	case RadioConnected:
		return "connected"
	case RadioWrongPassword:
		return "wrong-password"
	case RadioNoAP:
		return "no-ap"
	case RadioConnectFail:
		return "connect-fail"
	}
	return fmt.Sprintf("RadioStatus(%d)", s)
}

// Radio is the link management primitive set of the OS wireless stack.
// Connect starts association and returns without waiting for result.
type Radio interface {
	Connect(ssid, password string) error
	Status() RadioStatus
	Disconnect() error
}
