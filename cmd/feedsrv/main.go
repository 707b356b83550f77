// feedsrv serves a synthetic push-protocol feed for local development:
// a random-walk price drives market_data, orderbook and kline frames,
// and agent commands are answered with agent_response plus a roster
// update. No matching engine — trades are generated, not matched.
package main

import (
	"flag"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marksim/candlefeed/model/market"
)

var (
	addr       = flag.String("addr", ":8765", "listen address")
	symbol     = flag.String("symbol", "BTC/USD", "instrument symbol")
	timeframes = flag.String("timeframes", "1s,1m", "comma-separated kline timeframes")
	startPrice = flag.Float64("price", 50000, "starting price")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func main() {
	flag.Parse()

	http.HandleFunc("/stream", handleStream)
	log.Info().Str("addr", *addr).Msg("feedsrv listening")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal().Err(err).Msg("feedsrv: serve")
	}
}

// client wraps a connection with a write lock; the feed loop and the
// command responder both write.
type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("feedsrv: upgrade")
		return
	}
	defer ws.Close()

	c := &client{ws: ws}
	log.Info().Str("remote", ws.RemoteAddr().String()).Msg("client connected")

	roster := defaultRoster()
	c.send(map[string]any{"type": "agent_configs", "configs": roster.list()})

	done := make(chan struct{})
	go handleCommands(c, roster, done)
	runFeed(c, done)

	log.Info().Str("remote", ws.RemoteAddr().String()).Msg("client gone")
}

// runFeed pushes frames every 100ms until the client disappears.
func runFeed(c *client, done <-chan struct{}) {
	tfs := strings.Split(*timeframes, ",")
	live := make(map[string]*market.Candle, len(tfs))

	price := *startPrice
	volume24h := 0.0
	tradeCount := 0

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		price += price * (rand.Float64() - 0.5) * 0.002
		size := rand.Float64() * 2
		volume24h += size
		tradeCount++

		now := time.Now()
		nowMs := now.UnixMilli()
		trade := market.Trade{
			Timestamp: now.UnixMicro(),
			Price:     decimal.NewFromFloat(price),
			Size:      decimal.NewFromFloat(size),
		}

		spread := price * 0.0002
		err := c.send(map[string]any{
			"type":        "market_data",
			"timestamp":   now.UnixMicro(),
			"symbol":      *symbol,
			"last_price":  price,
			"bid_price":   price - spread/2,
			"ask_price":   price + spread/2,
			"volume_24h":  volume24h,
			"trade_count": tradeCount,
		})
		if err != nil {
			return
		}

		for _, tf := range tfs {
			if err := sendKlines(c, tf, live, trade, nowMs); err != nil {
				return
			}
		}

		if tick%10 == 0 {
			if err := c.send(orderbookFrame(price, spread, nowMs)); err != nil {
				return
			}
		}
	}
}

// sendKlines folds the trade into the timeframe's live candle, closing
// the previous one when the trade crosses a bucket boundary.
func sendKlines(c *client, tf string, live map[string]*market.Candle, trade market.Trade, nowMs int64) error {
	dur := market.DurationMs(tf)
	bucket := market.BucketStart(trade.TimeMs(), dur)

	cur := live[tf]
	if cur == nil || cur.BucketStart != bucket {
		if cur != nil {
			if err := c.send(klineFrame(tf, dur, *cur, true, nowMs)); err != nil {
				return err
			}
		}
		next := market.NewCandle(bucket, trade)
		live[tf] = &next
	} else {
		cur.Apply(trade)
	}
	return c.send(klineFrame(tf, dur, *live[tf], false, nowMs))
}

func klineFrame(tf string, durationMs int64, c market.Candle, closed bool, nowMs int64) map[string]any {
	return map[string]any{
		"e": "kline",
		"E": nowMs,
		"s": *symbol,
		"k": map[string]any{
			"t": c.BucketStart,
			"T": c.BucketStart + durationMs,
			"s": *symbol,
			"i": tf,
			"o": c.Open.InexactFloat64(),
			"c": c.Close.InexactFloat64(),
			"h": c.High.InexactFloat64(),
			"l": c.Low.InexactFloat64(),
			"v": c.Volume.InexactFloat64(),
			"n": 1,
			"x": closed,
		},
	}
}

func orderbookFrame(price, spread float64, nowMs int64) map[string]any {
	bids := make([][2]float64, 0, 10)
	asks := make([][2]float64, 0, 10)
	for i := 1; i <= 10; i++ {
		step := spread * float64(i)
		bids = append(bids, [2]float64{price - step, rand.Float64() * 5})
		asks = append(asks, [2]float64{price + step, rand.Float64() * 5})
	}
	return map[string]any{
		"type":      "orderbook",
		"bids":      bids,
		"asks":      asks,
		"spread":    spread,
		"mid_price": price,
		"timestamp": nowMs,
	}
}

// ── agent roster ─────────────────────────────────────────────────────────────

type roster struct {
	mu     sync.Mutex
	nextID int
	agents map[string]map[string]any
}

func defaultRoster() *roster {
	r := &roster{agents: make(map[string]map[string]any)}
	r.add("MarketMaker", map[string]float64{"spread": 0.01, "order_size": 1})
	r.add("NoiseTrader", map[string]float64{"trade_probability": 0.1, "max_size": 5})
	return r
}

func (r *roster) add(agentType string, params map[string]float64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := strings.ToLower(agentType) + "_" + time.Now().Format("150405") + "_" + string(rune('a'+r.nextID%26))
	r.nextID++
	cfg := map[string]any{"agent_id": id, "agent_type": agentType}
	for k, v := range params {
		cfg[k] = v
	}
	r.agents[id] = cfg
	return id
}

func (r *roster) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	return true
}

func (r *roster) update(id string, params map[string]float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.agents[id]
	if !ok {
		return false
	}
	for k, v := range params {
		cfg[k] = v
	}
	return true
}

func (r *roster) list() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, 0, len(r.agents))
	for _, cfg := range r.agents {
		out = append(out, cfg)
	}
	return out
}

// handleCommands answers agent_command frames; anything else from the
// client is ignored.
func handleCommands(c *client, r *roster, done chan<- struct{}) {
	defer close(done)

	for {
		var cmd struct {
			Type      string             `json:"type"`
			Action    string             `json:"action"`
			AgentType string             `json:"agent_type"`
			AgentID   string             `json:"agent_id"`
			Config    map[string]float64 `json:"config"`
		}
		if err := c.ws.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Type != "agent_command" {
			continue
		}

		var (
			action  string
			agentID string
			success bool
		)
		switch cmd.Action {
		case "create":
			agentID = r.add(cmd.AgentType, cmd.Config)
			action, success = "created", true
		case "delete":
			agentID = cmd.AgentID
			action, success = "deleted", r.remove(cmd.AgentID)
		case "update":
			agentID = cmd.AgentID
			action, success = "updated", r.update(cmd.AgentID, cmd.Config)
		default:
			continue
		}

		c.send(map[string]any{
			"type": "agent_response", "action": action,
			"agent_id": agentID, "success": success,
		})
		if success {
			c.send(map[string]any{"type": "agent_configs", "configs": r.list()})
		}
	}
}
