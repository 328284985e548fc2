package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultKeepalive   = 60 * time.Second
	defaultPingTimeout = 10 * time.Second
	publishTimeout     = 5 * time.Second

	TopicConnect = "connect"
	TopicState   = "state"
	TopicReading = "reading"
	TopicError   = "error"
)

func Topic(prefix, suffix string) string { return fmt.Sprintf("%s/%s", prefix, suffix) }

type transportMqtt struct {
	log  *log2.Log
	m    mqtt.Client
	mopt *mqtt.ClientOptions

	topicPrefix  string
	topicConnect string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, c Config) error {
	self.log = log
	mqttLog := log.Clone(log2.LInfo)
	if c.LogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = mqttLog
	}
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog

	if _, err := url.ParseRequestURI(c.Broker); err != nil {
		return errors.Annotatef(err, "tele broker=%s", c.Broker)
	}
	tlsconf := new(tls.Config)
	if c.TLSCAFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(c.TLSCAFile)
		if err != nil {
			return errors.Annotate(err, "tele TLS")
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}

	self.topicPrefix = c.TopicPrefix
	self.topicConnect = Topic(self.topicPrefix, TopicConnect)
	keepalive := c.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetBinaryWill(self.topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(true).
		SetClientID(c.ClientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetKeepAlive(keepalive).
		SetPingTimeout(defaultPingTimeout).
		SetOrderMatters(false).
		SetTLSConfig(tlsconf).
		SetStore(mqtt.NewMemoryStore()).
		SetConnectRetryInterval(keepalive / 2).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry token completes only after first successful connect
	self.m.Connect()
	return nil
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	if self.m.IsConnected() {
		self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(publishTimeout)
	}
	self.m.Disconnect(uint(publishTimeout / time.Millisecond))
}

func (self *transportMqtt) Publish(topicSuffix string, payload []byte, retained bool) bool {
	topic := Topic(self.topicPrefix, topicSuffix)
	if !self.m.IsConnected() {
		self.log.Debugf("mqtt offline, drop topic=%s", topic)
		return false
	}
	token := self.m.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		self.log.Errorf("mqtt publish topic=%s timeout", topic)
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Error(errors.Annotatef(err, "mqtt publish topic=%s", topic))
		return false
	}
	return true
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
