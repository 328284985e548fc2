package network

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/log2"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var testStart = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t testing.TB, radio *MockRadio, mh *helpers.MockHTTP) (*Session, *helpers.FakeClock, *[]LinkState) {
	clock := helpers.NewFakeClock(testStart)
	c := Config{
		SSID:           "homenet",
		Password:       "secret",
		ConnectTimeout: time.Second,
		PollStep:       250 * time.Millisecond,
	}
	var transport http.RoundTripper
	if mh != nil {
		transport = mh
	}
	s := NewSession(log2.NewTest(t, log2.LDebug), c, radio, clock, transport)
	changes := []LinkState{}
	s.OnChange = func(ls LinkState) { changes = append(changes, ls) }
	return s, clock, &changes
}

func TestConnect(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		result  RadioStatus
		delay   int
		connErr error
		kind    ErrorKind
		sleeps  int
		changes []LinkState
	}
	cases := []Case{
		{"ok", RadioConnected, 2, nil, ErrorInvalid, 2,
			[]LinkState{LinkConnecting, LinkConnected}},
		{"wrong-password", RadioWrongPassword, 1, nil, ErrorAuthRejected, 1,
			[]LinkState{LinkConnecting, LinkDisconnected}},
		{"no-ap", RadioNoAP, 0, nil, ErrorTimeout, 0,
			[]LinkState{LinkConnecting, LinkDisconnected}},
		{"timeout", RadioConnecting, 0, nil, ErrorTimeout, 4,
			[]LinkState{LinkConnecting, LinkDisconnected}},
		{"radio-error", RadioIdle, 0, fmt.Errorf("no wlan0"), ErrorTransport, 0,
			[]LinkState{LinkConnecting, LinkDisconnected}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			radio := &MockRadio{Result: c.result, Delay: c.delay, ConnectErr: c.connErr}
			s, clock, changes := newTestSession(t, radio, nil)
			steps := 0
			s.OnStep = func() { steps++ }

			err := s.Connect(context.Background())
			if c.kind == ErrorInvalid {
				require.NoError(t, err)
				assert.Equal(t, LinkConnected, s.State())
				assert.Equal(t, time.Second, s.Uptime(clock.Now().Add(time.Second)))
			} else {
				le, ok := AsLinkError(err)
				require.True(t, ok, "err=%v", err)
				assert.Equal(t, c.kind, le.Kind)
				assert.Equal(t, LinkDisconnected, s.State())
				assert.Equal(t, time.Duration(0), s.Uptime(clock.Now()))
			}
			assert.Len(t, clock.Sleeps(), c.sleeps)
			assert.Equal(t, c.sleeps, steps)
			assert.Equal(t, c.changes, *changes)
		})
	}
}

func TestConnectTimeoutBounded(t *testing.T) {
	t.Parallel()

	radio := &MockRadio{Result: RadioConnecting}
	s, clock, _ := newTestSession(t, radio, nil)
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, testStart.Add(time.Second), clock.Now())
	connects, failures := s.Stats()
	assert.Equal(t, uint32(0), connects)
	assert.Equal(t, uint32(1), failures)
	_, disconnects := radio.Calls()
	assert.Equal(t, 1, disconnects)
}

func TestEnsureConnected(t *testing.T) {
	t.Parallel()

	radio := &MockRadio{Result: RadioConnected}
	s, _, changes := newTestSession(t, radio, nil)
	ctx := context.Background()
	require.NoError(t, s.EnsureConnected(ctx))
	require.NoError(t, s.EnsureConnected(ctx))
	connects, _ := radio.Calls()
	assert.Equal(t, 1, connects, "connected link must not reconnect")

	radio.Drop()
	require.NoError(t, s.EnsureConnected(ctx))
	connects, _ = radio.Calls()
	assert.Equal(t, 2, connects)
	assert.Equal(t, []LinkState{LinkConnecting, LinkConnected, LinkDisconnected, LinkConnecting, LinkConnected}, *changes)
}

func TestRequest(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		mh     *helpers.MockHTTP
		expect string
		kind   ErrorKind
		code   int
		state  LinkState
	}
	cases := []Case{
		{"ok", &helpers.MockHTTP{Body: []byte(`{"x":1}`)}, `{"x":1}`, ErrorInvalid, 0, LinkConnected},
		{"limit", &helpers.MockHTTP{Body: []byte(strings.Repeat("a", MaxBody+100))},
			strings.Repeat("a", MaxBody), ErrorInvalid, 0, LinkConnected},
		{"404", &helpers.MockHTTP{Header: []byte("HTTP/1.0 404 Not Found\r\n\r\n"), Body: []byte("nope")},
			"", ErrorHttpStatus, 404, LinkConnected},
		{"401", &helpers.MockHTTP{Header: []byte("HTTP/1.0 401 Unauthorized\r\n\r\n")},
			"", ErrorHttpStatus, 401, LinkConnected},
		{"transport", &helpers.MockHTTP{Err: fmt.Errorf("connection reset")},
			"", ErrorTransport, 0, LinkDegraded},
		{"timeout", &helpers.MockHTTP{Err: timeoutError{}},
			"", ErrorTimeout, 0, LinkDegraded},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			radio := &MockRadio{Result: RadioConnected}
			s, _, _ := newTestSession(t, radio, c.mh)
			ctx := context.Background()
			require.NoError(t, s.Connect(ctx))

			b, err := s.Request(ctx, "http://api.test/data?q=1", map[string]string{"Accept": "application/json"})
			if c.kind == ErrorInvalid {
				require.NoError(t, err)
				assert.Equal(t, c.expect, string(b))
				assert.Equal(t, int64(len(c.expect)), s.Received())
			} else {
				le, ok := AsLinkError(err)
				require.True(t, ok, "err=%v", err)
				assert.Equal(t, c.kind, le.Kind)
				assert.Equal(t, c.code, le.Code)
			}
			assert.Equal(t, c.state, s.State())

			reqs := c.mh.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodGet, reqs[0].Method)
			assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
			assert.Equal(t, "api.test", reqs[0].URL.Host)
		})
	}
}

func TestDegradedReconnects(t *testing.T) {
	t.Parallel()

	radio := &MockRadio{Result: RadioConnected}
	mh := &helpers.MockHTTP{Err: fmt.Errorf("connection reset")}
	s, _, _ := newTestSession(t, radio, mh)
	ctx := context.Background()
	require.NoError(t, s.EnsureConnected(ctx))
	_, err := s.Request(ctx, "http://api.test/", nil)
	require.Error(t, err)
	assert.Equal(t, LinkDegraded, s.State())

	require.NoError(t, s.EnsureConnected(ctx))
	connects, _ := radio.Calls()
	assert.Equal(t, 2, connects)
	assert.Equal(t, LinkConnected, s.State())
}

func TestLinkErrorString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "link HttpStatus(503): 503 Service Unavailable",
		LinkError{Kind: ErrorHttpStatus, Code: 503, Err: fmt.Errorf("503 Service Unavailable")}.Error())
	assert.Equal(t, "link Timeout", LinkError{Kind: ErrorTimeout}.Error())
	_, ok := AsLinkError(nil)
	assert.False(t, ok)
}
