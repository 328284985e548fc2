package network

import "sync"

// MockRadio associates with Result status after Delay Status() polls.
type MockRadio struct {
	mu          sync.Mutex
	Result      RadioStatus
	Delay       int
	ConnectErr  error
	status      RadioStatus
	polls       int
	connects    int
	disconnects int
}

func (m *MockRadio) Connect(ssid, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.status = RadioConnecting
	m.polls = 0
	return nil
}

func (m *MockRadio) Status() RadioStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == RadioConnecting {
		if m.polls >= m.Delay {
			m.status = m.Result
		}
		m.polls++
	}
	return m.status
}

func (m *MockRadio) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.status = RadioIdle
	return nil
}

// Drop simulates lost association.
func (m *MockRadio) Drop() {
	m.mu.Lock()
	m.status = RadioIdle
	m.mu.Unlock()
}

func (m *MockRadio) Calls() (connects, disconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}
