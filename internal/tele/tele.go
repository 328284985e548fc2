// Package tele publishes device state and weather readings for diagnostics.
package tele

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/scheduler"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

const queueSize = 32

type Config struct {
	Enable      bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	TLSCAFile   string
	Keepalive   time.Duration
	LogDebug    bool
}

// StateMessage is payload of <prefix>/state.
type StateMessage struct {
	Boot        string `json:"boot"`
	Time        int64  `json:"time"`
	Scheduler   string `json:"scheduler"`
	Attempt     int    `json:"attempt"`
	Link        string `json:"link"`
	NextWake    int64  `json:"next_wake,omitempty"`
	LastSuccess int64  `json:"last_success,omitempty"`
	Error       string `json:"error,omitempty"`
	Quota       int    `json:"quota"`
}

// ReadingMessage is payload of <prefix>/reading.
type ReadingMessage struct {
	Boot    string          `json:"boot"`
	Took    int64           `json:"took_ms"`
	Reading weather.Reading `json:"reading"`
}

// ErrorMessage is payload of <prefix>/error.
type ErrorMessage struct {
	Boot  string `json:"boot"`
	Time  int64  `json:"time"`
	Error string `json:"error"`
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Tele contract:
// - Init fails only with invalid config, network issues ignored
// - public event methods never block the control loop, messages dropped when queue is full
// - Close waits until queued messages are handed to transport
type Tele struct { //nolint:maligned
	config    Config
	log       *log2.Log
	transport Transporter
	clock     helpers.Clock
	boot      string

	mu      sync.Mutex
	enabled bool
	sched   scheduler.Snapshot
	link    network.LinkState
	last    StateMessage
	q       chan message
	wg      sync.WaitGroup
	dropped uint32
	sent    uint32
}

var _ scheduler.Observer = (*Tele)(nil)

// New with nil transport uses MQTT.
func New(trans Transporter) *Tele {
	return &Tele{transport: trans, boot: uuid.NewV4().String()}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, c Config, clock helpers.Clock) error {
	self.config = c
	self.log = log
	if clock == nil {
		clock = helpers.SystemClock{}
	}
	self.clock = clock
	if !c.Enable {
		self.log.Infof("tele disabled")
		return nil
	}
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, log, c); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	self.q = make(chan message, queueSize)
	self.wg.Add(1)
	go self.worker()
	self.mu.Lock()
	self.enabled = true
	self.mu.Unlock()
	self.log.Infof("tele enabled broker=%s prefix=%s boot=%s", c.Broker, c.TopicPrefix, self.boot)
	return nil
}

func (self *Tele) Close() {
	self.mu.Lock()
	enabled := self.enabled
	self.enabled = false
	self.mu.Unlock()
	if !enabled {
		return
	}
	close(self.q)
	self.wg.Wait()
	self.transport.Close()
}

func (self *Tele) Boot() string { return self.boot }

// Stats returns count of published messages and messages dropped on full queue.
func (self *Tele) Stats() (sent, dropped uint32) {
	return atomic.LoadUint32(&self.sent), atomic.LoadUint32(&self.dropped)
}

func (self *Tele) StateChanged(s scheduler.Snapshot) {
	self.mu.Lock()
	self.sched = s
	self.mu.Unlock()
	self.publishState()
}

func (self *Tele) LinkChanged(l network.LinkState) {
	self.mu.Lock()
	self.link = l
	self.mu.Unlock()
	self.publishState()
}

func (self *Tele) Polled(r weather.Reading, err error, took time.Duration) {
	if err != nil {
		return
	}
	msg := ReadingMessage{
		Boot:    self.boot,
		Took:    took.Milliseconds(),
		Reading: r,
	}
	b, jerr := json.Marshal(msg)
	if jerr != nil {
		self.log.Error(errors.Annotate(jerr, "tele reading"))
		return
	}
	self.enqueue(message{topic: TopicReading, payload: b, retained: true})
}

// Error is meant for log2.SetErrorFunc. Log passed to Init must not forward errors here.
func (self *Tele) Error(err error) {
	if err == nil {
		return
	}
	msg := ErrorMessage{
		Boot:  self.boot,
		Time:  self.clock.Now().Unix(),
		Error: err.Error(),
	}
	b, jerr := json.Marshal(msg)
	if jerr != nil {
		self.log.Error(errors.Annotate(jerr, "tele error"))
		return
	}
	self.enqueue(message{topic: TopicError, payload: b})
}

// publishState sends only when scheduler state, attempt or link state changed.
func (self *Tele) publishState() {
	self.mu.Lock()
	if !self.enabled {
		self.mu.Unlock()
		return
	}
	msg := StateMessage{
		Boot:      self.boot,
		Time:      self.clock.Now().Unix(),
		Scheduler: self.sched.State.String(),
		Attempt:   self.sched.Attempt,
		Link:      self.link.String(),
		Error:     self.sched.LastError,
		Quota:     self.sched.Quota,
	}
	if !self.sched.NextWake.IsZero() {
		msg.NextWake = self.sched.NextWake.Unix()
	}
	if !self.sched.LastSuccess.IsZero() {
		msg.LastSuccess = self.sched.LastSuccess.Unix()
	}
	if msg.Scheduler == self.last.Scheduler && msg.Attempt == self.last.Attempt && msg.Link == self.last.Link {
		self.mu.Unlock()
		return
	}
	self.last = msg
	self.mu.Unlock()

	b, err := json.Marshal(msg)
	if err != nil {
		self.log.Error(errors.Annotate(err, "tele state"))
		return
	}
	self.enqueue(message{topic: TopicState, payload: b, retained: true})
}

func (self *Tele) enqueue(m message) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.enabled {
		return
	}
	select {
	case self.q <- m:
	default:
		atomic.AddUint32(&self.dropped, 1)
		self.log.Debugf("tele queue full, drop topic=%s", m.topic)
	}
}

func (self *Tele) worker() {
	defer self.wg.Done()
	for m := range self.q {
		if self.transport.Publish(m.topic, m.payload, m.retained) {
			atomic.AddUint32(&self.sent, 1)
		}
	}
}
