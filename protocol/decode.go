package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope probes the two discriminant fields without committing to a
// message shape.
type envelope struct {
	Type  string `json:"type"`
	Event string `json:"e"`
	// Absorbs the kline event-time key; without it, encoding/json's
	// case-insensitive fallback would try to stuff "E" into Event.
	EventTime int64 `json:"E"`
}

// Decode parses one complete frame into its message variant.
//
// Discriminants are inspected in fixed priority order: the `type` field
// first, then `e` for kline-shaped frames. A frame whose discriminant
// is not recognized decodes into *Unknown (not an error); malformed
// JSON or a payload that does not match its declared shape is an error.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case "market_data":
		msg = &MarketData{}
	case "orderbook":
		msg = &OrderBook{}
	case "agent_configs":
		msg = &AgentConfigs{}
	case "agent_response":
		msg = &AgentResponse{}
	case "progress":
		msg = &Progress{}
	case "final":
		msg = &Final{}
	case "":
		if env.Event == "kline" {
			msg = &Kline{}
			break
		}
		return &Unknown{Tag: env.Event, Raw: append([]byte(nil), data...)}, nil
	default:
		return &Unknown{Tag: env.Type, Raw: append([]byte(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", msg.Kind(), err)
	}
	return msg, nil
}
