package i2c

import (
	"sync"
)

type MockTx struct {
	Addr uint16
	W    []byte
}

// MockBus records written bytes; reads return zeros unless Err is set.
type MockBus struct {
	mu  sync.Mutex
	txs []MockTx
	Err error
}

func (m *MockBus) Tx(addr uint16, w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.txs = append(m.txs, MockTx{Addr: addr, W: append([]byte(nil), w...)})
	for i := range r {
		r[i] = 0
	}
	return nil
}

func (m *MockBus) Close() error { return nil }

func (m *MockBus) Txs() []MockTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockTx(nil), m.txs...)
}

func (m *MockBus) Reset() {
	m.mu.Lock()
	m.txs = nil
	m.mu.Unlock()
}
