// Package protocol defines the messages spoken by the two upstream
// feeds — the push protocol (discrete JSON frames over a persistent
// connection) and the streamed-response protocol (one JSON object per
// line) — as a tagged union with a single decode entry point.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marksim/candlefeed/model/market"
)

// Kind is the routing discriminant of a decoded message.
type Kind string

const (
	KindMarketData    Kind = "market_data"
	KindOrderBook     Kind = "orderbook"
	KindAgentConfigs  Kind = "agent_configs"
	KindAgentResponse Kind = "agent_response"
	KindKline         Kind = "kline"
	KindProgress      Kind = "progress"
	KindFinal         Kind = "final"
)

// Message is one decoded frame from either feed.
type Message interface {
	Kind() Kind
}

// MarketData is the latest top-of-book summary.
type MarketData struct {
	Timestamp  int64           `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	LastPrice  decimal.Decimal `json:"last_price"`
	BidPrice   decimal.Decimal `json:"bid_price"`
	AskPrice   decimal.Decimal `json:"ask_price"`
	BidSize    decimal.Decimal `json:"bid_size"`
	AskSize    decimal.Decimal `json:"ask_size"`
	Volume24h  decimal.Decimal `json:"volume_24h"`
	TradeCount int             `json:"trade_count"`
}

func (*MarketData) Kind() Kind { return KindMarketData }

// Stats converts the frame into the model-layer summary.
func (m *MarketData) Stats() market.Stats {
	return market.Stats{
		Timestamp:  m.Timestamp,
		LastPrice:  m.LastPrice,
		BidPrice:   m.BidPrice,
		AskPrice:   m.AskPrice,
		Volume24h:  m.Volume24h,
		TradeCount: m.TradeCount,
	}
}

// Level is one order book price level, encoded on the wire as
// [price, size].
type Level [2]decimal.Decimal

// Price returns the level price.
func (l Level) Price() decimal.Decimal { return l[0] }

// Size returns the resting size at the level.
func (l Level) Size() decimal.Decimal { return l[1] }

// OrderBook is a full depth snapshot.
type OrderBook struct {
	Bids      []Level         `json:"bids"`
	Asks      []Level         `json:"asks"`
	Spread    decimal.Decimal `json:"spread"`
	MidPrice  decimal.Decimal `json:"mid_price"`
	Timestamp int64           `json:"timestamp"`
}

func (*OrderBook) Kind() Kind { return KindOrderBook }

// AgentConfig describes one simulated agent. Upstream flattens the
// numeric parameters into the config object itself, so everything that
// is not an identity field lands in Params.
type AgentConfig struct {
	AgentID   string
	AgentType string
	Params    map[string]float64
}

func (c *AgentConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Params = make(map[string]float64)
	for key, val := range raw {
		switch key {
		case "agent_id":
			if err := json.Unmarshal(val, &c.AgentID); err != nil {
				return fmt.Errorf("protocol: agent_id: %w", err)
			}
		case "agent_type":
			if err := json.Unmarshal(val, &c.AgentType); err != nil {
				return fmt.Errorf("protocol: agent_type: %w", err)
			}
		default:
			var f float64
			if err := json.Unmarshal(val, &f); err == nil {
				c.Params[key] = f
			}
			// Non-numeric extras are dropped.
		}
	}
	return nil
}

// AgentConfigs is a full replace of the agent roster.
type AgentConfigs struct {
	Configs []AgentConfig `json:"configs"`
}

func (*AgentConfigs) Kind() Kind { return KindAgentConfigs }

// AgentResponse reports the result of a prior agent command.
type AgentResponse struct {
	Action  string `json:"action"`
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`
}

func (*AgentResponse) Kind() Kind { return KindAgentResponse }

// Kline is a Binance-style bar update. All timestamps are already in
// milliseconds.
type Kline struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Bar       struct {
		OpenTime   int64           `json:"t"`
		CloseTime  int64           `json:"T"`
		Symbol     string          `json:"s"`
		Interval   string          `json:"i"`
		Open       decimal.Decimal `json:"o"`
		Close      decimal.Decimal `json:"c"`
		High       decimal.Decimal `json:"h"`
		Low        decimal.Decimal `json:"l"`
		Volume     decimal.Decimal `json:"v"`
		TradeCount int             `json:"n"`
		IsClosed   bool            `json:"x"`
	} `json:"k"`
}

func (*Kline) Kind() Kind { return KindKline }

// Timeframe is the bar's interval label.
func (k *Kline) Timeframe() string { return k.Bar.Interval }

// IsClosed reports whether the bar is final.
func (k *Kline) IsClosed() bool { return k.Bar.IsClosed }

// Candle converts the bar payload into the model-layer candle.
func (k *Kline) Candle() market.Candle {
	return market.Candle{
		BucketStart: k.Bar.OpenTime,
		Open:        k.Bar.Open,
		High:        k.Bar.High,
		Low:         k.Bar.Low,
		Close:       k.Bar.Close,
		Volume:      k.Bar.Volume,
	}
}

// Progress is one frame of a streamed batch run. LatestTrades is a
// rolling window and may repeat trades already delivered.
type Progress struct {
	Progress     float64         `json:"progress"`
	Trades       int             `json:"trades"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LatestTrades []market.Trade  `json:"latest_trades"`
}

func (*Progress) Kind() Kind { return KindProgress }

// Final is the terminal frame of a streamed batch run, carrying the
// complete trade tape.
type Final struct {
	Trades          []market.Trade    `json:"trades"`
	OrderbookStates []json.RawMessage `json:"orderbook_states"`
	AgentStats      []json.RawMessage `json:"agent_stats"`
	FinalPrice      decimal.Decimal   `json:"final_price"`
	TotalTrades     int               `json:"total_trades"`
}

func (*Final) Kind() Kind { return KindFinal }

// Unknown wraps a syntactically valid frame whose discriminant is not
// recognized. Routers count these and drop them.
type Unknown struct {
	Tag string
	Raw json.RawMessage
}

func (*Unknown) Kind() Kind { return Kind("") }
