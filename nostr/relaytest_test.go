package nostr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testRelayServer is a minimal in-process relay: it serves its stored
// events for REQ, acks EVENT with OK, and records what was published.
type testRelayServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mutex     sync.Mutex
	stored    []*Event
	published []*Event
	conns     []*websocket.Conn
	connCount int
}

func newTestRelayServer(t *testing.T, stored []*Event) *testRelayServer {
	self := &testRelayServer{
		t:      t,
		stored: stored,
	}
	self.server = httptest.NewServer(http.HandlerFunc(self.handle))
	t.Cleanup(self.server.Close)
	return self
}

func (self *testRelayServer) Url() string {
	return "ws" + strings.TrimPrefix(self.server.URL, "http")
}

func (self *testRelayServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	self.mutex.Lock()
	self.conns = append(self.conns, conn)
	self.connCount += 1
	self.mutex.Unlock()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 2 {
			continue
		}
		var messageType string
		json.Unmarshal(parts[0], &messageType)

		switch messageType {
		case "EVENT":
			event := &Event{}
			if err := json.Unmarshal(parts[1], event); err == nil {
				self.mutex.Lock()
				self.published = append(self.published, event)
				self.mutex.Unlock()
				self.writeJson(conn, []any{"OK", event.Id, true, ""})
			}
		case "REQ":
			var subscriptionId string
			json.Unmarshal(parts[1], &subscriptionId)
			filters := []*Filter{}
			for _, raw := range parts[2:] {
				filter := &Filter{}
				if err := json.Unmarshal(raw, filter); err == nil {
					filters = append(filters, filter)
				}
			}
			self.mutex.Lock()
			stored := slices.Clone(self.stored)
			self.mutex.Unlock()
			for _, event := range stored {
				for _, filter := range filters {
					if filter.Matches(event) {
						self.writeJson(conn, []any{"EVENT", subscriptionId, event})
						break
					}
				}
			}
			self.writeJson(conn, []any{"EOSE", subscriptionId})
		}
	}
}

func (self *testRelayServer) writeJson(conn *websocket.Conn, parts []any) {
	data, err := json.Marshal(parts)
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}

func (self *testRelayServer) closeConns() {
	self.mutex.Lock()
	conns := self.conns
	self.conns = nil
	self.mutex.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (self *testRelayServer) publishedEvents() []*Event {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.published)
}

func (self *testRelayServer) connections() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.connCount
}

func testEvent(kind int, content string, createdAt int64) *Event {
	return testEventWithAuthor(kind, strings.Repeat("ab", 32), content, createdAt)
}

func testEventWithAuthor(kind int, author string, content string, createdAt int64) *Event {
	event := &Event{
		Pubkey:    author,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      [][]string{},
		Content:   content,
	}
	id, _ := event.ComputeId()
	event.Id = id
	return event
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	endTime := time.Now().Add(timeout)
	for time.Now().Before(endTime) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
