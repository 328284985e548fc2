// Package network owns wireless link lifecycle and performs one HTTP request at a time.
package network

import (
	"context"
	"expvar"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/helpers/atomic_clock"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollStep       = 250 * time.Millisecond
	MaxBody               = 64 << 10
)

type Config struct {
	SSID           string
	Password       string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// PollStep is radio status polling period while connecting.
	PollStep time.Duration
}

type Session struct { //nolint:maligned
	log    *log2.Log
	config Config
	radio  Radio
	clock  helpers.Clock
	client *http.Client
	state  uint32
	linkUp atomic_clock.Clock

	connects uint32
	failures uint32
	received expvar.Int

	// OnChange is called on every link state transition, from loop goroutine.
	OnChange func(LinkState)
	// OnStep is called each poll step while connecting.
	OnStep func()
}

func NewSession(log *log2.Log, c Config, radio Radio, clock helpers.Clock, transport http.RoundTripper) *Session {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.PollStep == 0 {
		c.PollStep = DefaultPollStep
	}
	if clock == nil {
		clock = helpers.SystemClock{}
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Session{
		log:    log,
		config: c,
		radio:  radio,
		clock:  clock,
		client: &http.Client{Transport: transport},
	}
}

func (self *Session) State() LinkState { return LinkState(atomic.LoadUint32(&self.state)) }

func (self *Session) setState(new LinkState) {
	old := LinkState(atomic.SwapUint32(&self.state, uint32(new)))
	if old == new {
		return
	}
	self.log.Debugf("link state %s -> %s", old, new)
	if new == LinkConnected {
		self.linkUp.SetTime(self.clock.Now())
	} else if old == LinkConnected {
		self.linkUp.Clear()
	}
	if self.OnChange != nil {
		self.OnChange(new)
	}
}

// Uptime of current link, 0 when not connected. Safe from any goroutine.
func (self *Session) Uptime(now time.Time) time.Duration { return self.linkUp.Since(now) }

// Stats returns total successful connects and failed attempts.
func (self *Session) Stats() (connects, failures uint32) {
	return atomic.LoadUint32(&self.connects), atomic.LoadUint32(&self.failures)
}

// Received is total HTTP body bytes read, including error responses.
func (self *Session) Received() int64 { return self.received.Value() }

// Connect blocks up to ConnectTimeout waiting for association.
// Fails with LinkError Timeout or AuthRejected.
func (self *Session) Connect(ctx context.Context) error {
	self.setState(LinkConnecting)
	self.log.Infof("link connecting ssid=%s", self.config.SSID)
	if err := self.radio.Connect(self.config.SSID, self.config.Password); err != nil {
		return self.connectFailed(LinkError{Kind: ErrorTransport, Err: err})
	}

	deadline := self.clock.Now().Add(self.config.ConnectTimeout)
	for {
		status := self.radio.Status()
		switch status {
		case RadioConnected:
			atomic.AddUint32(&self.connects, 1)
			self.setState(LinkConnected)
			self.log.Infof("link connected ssid=%s", self.config.SSID)
			return nil
		case RadioWrongPassword:
			return self.connectFailed(LinkError{Kind: ErrorAuthRejected, Err: errors.Errorf("radio status=%s", status)})
		case RadioNoAP, RadioConnectFail:
			return self.connectFailed(LinkError{Kind: ErrorTimeout, Err: errors.Errorf("radio status=%s", status)})
		}

		if err := ctx.Err(); err != nil {
			return self.connectFailed(LinkError{Kind: ErrorTimeout, Err: err})
		}
		if !self.clock.Now().Before(deadline) {
			return self.connectFailed(LinkError{Kind: ErrorTimeout,
				Err: errors.Errorf("no association after %v status=%s", self.config.ConnectTimeout, status)})
		}
		if self.OnStep != nil {
			self.OnStep()
		}
		self.clock.Sleep(self.config.PollStep)
	}
}

func (self *Session) connectFailed(le LinkError) error {
	atomic.AddUint32(&self.failures, 1)
	if err := self.radio.Disconnect(); err != nil {
		self.log.Debugf("link disconnect after failure err=%v", err)
	}
	self.setState(LinkDisconnected)
	return le
}

// EnsureConnected reconnects when link is not up or radio lost association.
func (self *Session) EnsureConnected(ctx context.Context) error {
	if self.State() == LinkConnected {
		if self.radio.Status() == RadioConnected {
			return nil
		}
		self.log.Infof("link dropped")
		self.setState(LinkDisconnected)
	}
	return self.Connect(ctx)
}

// Request performs one HTTP GET and returns body limited to MaxBody.
// No retries.
func (self *Session) Request(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, LinkError{Kind: ErrorTransport, Err: errors.Annotate(err, "build request")}
	}
	req = req.WithContext(ctx)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := self.client.Do(req)
	if err != nil {
		return nil, self.requestFailed(ctx, err)
	}
	defer resp.Body.Close()
	r := io.LimitReader(helpers.NewCountReader(resp.Body, &self.received), MaxBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(ioutil.Discard, r)
		return nil, LinkError{Kind: ErrorHttpStatus, Code: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	body, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, self.requestFailed(ctx, err)
	}
	return body, nil
}

func (self *Session) requestFailed(ctx context.Context, err error) error {
	kind := ErrorTransport
	if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
		kind = ErrorTimeout
	} else if ctx.Err() == context.DeadlineExceeded {
		kind = ErrorTimeout
	}
	if self.State() == LinkConnected {
		self.setState(LinkDegraded)
	}
	return LinkError{Kind: kind, Err: err}
}

func (self *Session) Close() error {
	self.setState(LinkDisconnected)
	return self.radio.Disconnect()
}
