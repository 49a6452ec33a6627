package nostr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type RelayStatus string

const (
	RelayStatusDisconnected RelayStatus = "disconnected"
	RelayStatusConnecting   RelayStatus = "connecting"
	RelayStatusConnected    RelayStatus = "connected"
	RelayStatusError        RelayStatus = "error"
)

type RelaySettings struct {
	HandshakeTimeout    time.Duration
	WriteTimeout        time.Duration
	PingTimeout         time.Duration
	ReconnectMinTimeout time.Duration
	ReconnectMaxTimeout time.Duration
}

func DefaultRelaySettings() *RelaySettings {
	return &RelaySettings{
		HandshakeTimeout:    2 * time.Second,
		WriteTimeout:        5 * time.Second,
		PingTimeout:         25 * time.Second,
		ReconnectMinTimeout: 1 * time.Second,
		ReconnectMaxTimeout: 30 * time.Second,
	}
}

type relaySubscription struct {
	filters []*Filter
	onEvent func(*Event)
}

// Relay is one bidirectional channel to a relay endpoint.
//
// disconnected -> connecting -> connected, or connecting -> error.
// An unexpected close of an established connection schedules a reconnect
// with exponential backoff; the delay doubles on each consecutive failure
// up to the ceiling and resets on success. Only an explicit Disconnect
// stops the cycle.
type Relay struct {
	ctx      context.Context
	url      string
	settings *RelaySettings

	mutex            sync.Mutex
	ws               *websocket.Conn
	status           RelayStatus
	subscriptions    map[string]*relaySubscription
	generation       int
	connCancel       context.CancelFunc
	reconnectTimeout time.Duration
	reconnectTimer   *time.Timer
	closed           bool

	writeMutex sync.Mutex
}

func NewRelayWithDefaults(ctx context.Context, url string) *Relay {
	return NewRelay(ctx, url, DefaultRelaySettings())
}

func NewRelay(ctx context.Context, url string, settings *RelaySettings) *Relay {
	return &Relay{
		ctx:              ctx,
		url:              url,
		settings:         settings,
		status:           RelayStatusDisconnected,
		subscriptions:    map[string]*relaySubscription{},
		reconnectTimeout: settings.ReconnectMinTimeout,
	}
}

func (self *Relay) Url() string {
	return self.url
}

func (self *Relay) Status() RelayStatus {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.status
}

func (self *Relay) Connect() error {
	self.mutex.Lock()
	if self.status == RelayStatusConnected || self.status == RelayStatusConnecting {
		self.mutex.Unlock()
		return nil
	}
	self.closed = false
	self.status = RelayStatusConnecting
	self.mutex.Unlock()

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(self.ctx, self.url, nil)
	if err != nil {
		self.mutex.Lock()
		self.status = RelayStatusError
		self.mutex.Unlock()
		glog.Infof("[relay]connect %s error = %s\n", self.url, err)
		return fmt.Errorf("connect %s: %w", self.url, err)
	}

	self.mutex.Lock()
	self.generation += 1
	generation := self.generation
	self.ws = conn
	self.status = RelayStatusConnected
	self.reconnectTimeout = self.settings.ReconnectMinTimeout
	handleCtx, handleCancel := context.WithCancel(self.ctx)
	self.connCancel = handleCancel
	// re-issue open subscriptions on the fresh connection
	reqs := [][]byte{}
	for subscriptionId, subscription := range self.subscriptions {
		if data, err := encodeReqMessage(subscriptionId, subscription.filters); err == nil {
			reqs = append(reqs, data)
		}
	}
	self.mutex.Unlock()

	for _, data := range reqs {
		if err := self.write(conn, data); err != nil {
			glog.Infof("[relay]%s resubscribe error = %s\n", self.url, err)
		}
	}

	go self.readLoop(handleCtx, generation, conn)
	go self.pingLoop(handleCtx, conn)

	glog.V(2).Infof("[relay]connected %s\n", self.url)
	return nil
}

// Disconnect terminates the connection, cancels any pending reconnect,
// and clears pending subscriptions.
func (self *Relay) Disconnect() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.closed = true
	if self.reconnectTimer != nil {
		self.reconnectTimer.Stop()
		self.reconnectTimer = nil
	}
	if self.connCancel != nil {
		self.connCancel()
		self.connCancel = nil
	}
	if self.ws != nil {
		self.ws.Close()
		self.ws = nil
	}
	self.status = RelayStatusDisconnected
	self.subscriptions = map[string]*relaySubscription{}
	self.reconnectTimeout = self.settings.ReconnectMinTimeout
}

// Publish is only valid when connected.
func (self *Relay) Publish(event *Event) error {
	self.mutex.Lock()
	if self.status != RelayStatusConnected || self.ws == nil {
		self.mutex.Unlock()
		return fmt.Errorf("not connected to %s", self.url)
	}
	conn := self.ws
	self.mutex.Unlock()

	data, err := encodeEventMessage(event)
	if err != nil {
		return err
	}
	return self.write(conn, data)
}

// Subscribe is only valid when connected.
func (self *Relay) Subscribe(subscriptionId string, filters []*Filter, onEvent func(*Event)) error {
	self.mutex.Lock()
	if self.status != RelayStatusConnected || self.ws == nil {
		self.mutex.Unlock()
		return fmt.Errorf("not connected to %s", self.url)
	}
	self.subscriptions[subscriptionId] = &relaySubscription{
		filters: filters,
		onEvent: onEvent,
	}
	conn := self.ws
	self.mutex.Unlock()

	data, err := encodeReqMessage(subscriptionId, filters)
	if err != nil {
		return err
	}
	return self.write(conn, data)
}

// Unsubscribe is best effort.
func (self *Relay) Unsubscribe(subscriptionId string) {
	self.mutex.Lock()
	delete(self.subscriptions, subscriptionId)
	conn := self.ws
	connected := self.status == RelayStatusConnected
	self.mutex.Unlock()

	if connected && conn != nil {
		if data, err := encodeCloseMessage(subscriptionId); err == nil {
			self.write(conn, data)
		}
	}
}

func (self *Relay) write(conn *websocket.Conn, data []byte) error {
	self.writeMutex.Lock()
	defer self.writeMutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (self *Relay) readLoop(handleCtx context.Context, generation int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-handleCtx.Done():
			default:
				glog.Infof("[relay]%s read error = %s\n", self.url, err)
			}
			self.handleClose(generation)
			return
		}

		message, err := parseRelayMessage(data)
		if err != nil {
			glog.Infof("[relay]%s bad message = %s\n", self.url, err)
			continue
		}

		switch message.Type {
		case "EVENT":
			self.mutex.Lock()
			subscription := self.subscriptions[message.SubscriptionId]
			self.mutex.Unlock()
			if subscription != nil && message.Event != nil {
				subscription.onEvent(message.Event)
			}
		case "OK":
			if message.Ok {
				glog.V(2).Infof("[relay]%s published %s\n", self.url, message.EventId)
			} else {
				glog.Infof("[relay]%s rejected %s = %s\n", self.url, message.EventId, message.Reason)
			}
		case "EOSE":
			glog.V(2).Infof("[relay]%s eose %s\n", self.url, message.SubscriptionId)
		case "NOTICE":
			glog.Infof("[relay]%s notice = %s\n", self.url, message.Notice)
		default:
			glog.V(2).Infof("[relay]%s other = %s\n", self.url, message.Type)
		}
	}
}

func (self *Relay) pingLoop(handleCtx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-handleCtx.Done():
			return
		case <-time.After(self.settings.PingTimeout):
			deadline := time.Now().Add(self.settings.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (self *Relay) handleClose(generation int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if generation != self.generation {
		// a newer connection owns the state
		return
	}
	if self.connCancel != nil {
		self.connCancel()
		self.connCancel = nil
	}
	if self.ws != nil {
		self.ws.Close()
		self.ws = nil
	}
	self.status = RelayStatusDisconnected
	if self.closed {
		return
	}
	self.scheduleReconnect()
}

// scheduleReconnect must be called with the mutex held.
func (self *Relay) scheduleReconnect() {
	if self.reconnectTimer != nil {
		return
	}
	timeout := self.reconnectTimeout
	self.reconnectTimeout = min(2*self.reconnectTimeout, self.settings.ReconnectMaxTimeout)
	glog.V(2).Infof("[relay]%s reconnect in %s\n", self.url, timeout)
	self.reconnectTimer = time.AfterFunc(timeout, self.reconnect)
}

func (self *Relay) reconnect() {
	self.mutex.Lock()
	self.reconnectTimer = nil
	if self.closed {
		self.mutex.Unlock()
		return
	}
	self.mutex.Unlock()

	select {
	case <-self.ctx.Done():
		return
	default:
	}

	glog.Infof("[relay]%s reconnecting\n", self.url)
	if err := self.Connect(); err != nil {
		self.mutex.Lock()
		if !self.closed {
			self.scheduleReconnect()
		}
		self.mutex.Unlock()
	}
}
