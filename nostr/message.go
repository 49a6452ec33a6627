package nostr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Relay wire framing. Client to relay: EVENT, REQ, CLOSE.
// Relay to client: EVENT, OK, EOSE, NOTICE.

func encodeClientMessage(parts ...any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(parts); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeEventMessage(event *Event) ([]byte, error) {
	return encodeClientMessage("EVENT", event)
}

func encodeReqMessage(subscriptionId string, filters []*Filter) ([]byte, error) {
	parts := []any{"REQ", subscriptionId}
	for _, filter := range filters {
		parts = append(parts, filter)
	}
	return encodeClientMessage(parts...)
}

func encodeCloseMessage(subscriptionId string) ([]byte, error) {
	return encodeClientMessage("CLOSE", subscriptionId)
}

type relayMessage struct {
	Type           string
	SubscriptionId string
	Event          *Event
	EventId        string
	Ok             bool
	Reason         string
	Notice         string
}

func parseRelayMessage(data []byte) (*relayMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	message := &relayMessage{}
	if err := json.Unmarshal(parts[0], &message.Type); err != nil {
		return nil, err
	}
	switch message.Type {
	case "EVENT":
		if len(parts) < 3 {
			return nil, fmt.Errorf("short EVENT message")
		}
		if err := json.Unmarshal(parts[1], &message.SubscriptionId); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[2], &message.Event); err != nil {
			return nil, err
		}
	case "OK":
		if len(parts) < 3 {
			return nil, fmt.Errorf("short OK message")
		}
		if err := json.Unmarshal(parts[1], &message.EventId); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[2], &message.Ok); err != nil {
			return nil, err
		}
		if 4 <= len(parts) {
			json.Unmarshal(parts[3], &message.Reason)
		}
	case "EOSE":
		if len(parts) < 2 {
			return nil, fmt.Errorf("short EOSE message")
		}
		if err := json.Unmarshal(parts[1], &message.SubscriptionId); err != nil {
			return nil, err
		}
	case "NOTICE":
		if 2 <= len(parts) {
			json.Unmarshal(parts[1], &message.Notice)
		}
	}
	return message, nil
}
