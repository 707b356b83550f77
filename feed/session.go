// Package feed wires one upstream connection to its consumers: a
// decoder and router on the input side, and a candle store, trade log
// and latest-value sinks on the state side. A session owns all of its
// state; nothing is shared across connections.
package feed

import (
	"fmt"
	"sync"

	"github.com/marksim/candlefeed/candles"
	"github.com/marksim/candlefeed/model/market"
	"github.com/marksim/candlefeed/protocol"
	"github.com/marksim/candlefeed/stream"
	"github.com/marksim/candlefeed/tradelog"
)

// State is the connection lifecycle of a session.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// Session consumes one message stream. Feed is not safe for concurrent
// use; the reads that render state (Candles, Stats, …) are.
type Session struct {
	dec    *stream.Decoder
	router *stream.Router
	store  *candles.Store
	trades *tradelog.Log

	timeframes []string

	mu        sync.Mutex
	state     State
	stats     market.Stats
	book      *protocol.OrderBook
	agents    []protocol.AgentConfig
	lastResp  *protocol.AgentResponse
	progress  float64
	runDone   bool
	updates   uint64
}

// NewSession creates a session that maintains candle timelines for the
// given timeframes. Kline bars carry their own timeframe label and are
// stored regardless; the timeframes here drive the trade-bucketing
// path used by streamed batch runs.
func NewSession(timeframes ...string) *Session {
	s := &Session{
		dec:        stream.NewDecoder(),
		router:     stream.NewRouter(),
		store:      candles.NewStore(),
		trades:     tradelog.New(tradelog.DefaultCapacity),
		timeframes: timeframes,
	}

	s.router.Subscribe(protocol.KindMarketData, s.onMarketData)
	s.router.Subscribe(protocol.KindOrderBook, s.onOrderBook)
	s.router.Subscribe(protocol.KindAgentConfigs, s.onAgentConfigs)
	s.router.Subscribe(protocol.KindAgentResponse, s.onAgentResponse)
	s.router.Subscribe(protocol.KindKline, s.onKline)
	s.router.Subscribe(protocol.KindProgress, s.onProgress)
	s.router.Subscribe(protocol.KindFinal, s.onFinal)

	return s
}

// Feed pushes one transport chunk through the decoder and dispatches
// every completed message before returning.
func (s *Session) Feed(chunk []byte) {
	for _, msg := range s.dec.Feed(chunk) {
		s.router.Dispatch(msg)
	}
}

// CloseStream releases the decoder (discarding any unterminated tail)
// and marks the session disconnected. No further messages are
// dispatched afterwards.
func (s *Session) CloseStream() {
	s.dec.Close()
	s.setState(StateDisconnected)
}

// MarkConnected records that the transport is up.
func (s *Session) MarkConnected() { s.setState(StateConnected) }

// MarkDisconnected records that the transport went away.
func (s *Session) MarkDisconnected() { s.setState(StateDisconnected) }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Reset clears all accumulated state for a new run. The connection
// state is kept.
func (s *Session) Reset() {
	s.store.Reset()
	s.trades.Reset()

	s.mu.Lock()
	s.stats = market.Stats{}
	s.book = nil
	s.agents = nil
	s.lastResp = nil
	s.progress = 0
	s.runDone = false
	s.updates = 0
	s.mu.Unlock()
}

// Router exposes the session's router so additional observers (for
// example a renderer) can subscribe to the same message flow.
func (s *Session) Router() *stream.Router { return s.router }

// ── handlers ─────────────────────────────────────────────────────────────────

func (s *Session) onMarketData(msg protocol.Message) error {
	m, ok := msg.(*protocol.MarketData)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}
	s.mu.Lock()
	s.stats = m.Stats()
	s.updates++
	s.mu.Unlock()
	return nil
}

func (s *Session) onOrderBook(msg protocol.Message) error {
	b, ok := msg.(*protocol.OrderBook)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}
	s.mu.Lock()
	s.book = b
	s.mu.Unlock()
	return nil
}

// onAgentConfigs replaces the whole roster; upstream always sends the
// full set.
func (s *Session) onAgentConfigs(msg protocol.Message) error {
	c, ok := msg.(*protocol.AgentConfigs)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}
	s.mu.Lock()
	s.agents = c.Configs
	s.mu.Unlock()
	return nil
}

func (s *Session) onAgentResponse(msg protocol.Message) error {
	r, ok := msg.(*protocol.AgentResponse)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}
	s.mu.Lock()
	s.lastResp = r
	s.mu.Unlock()
	return nil
}

func (s *Session) onKline(msg protocol.Message) error {
	k, ok := msg.(*protocol.Kline)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}
	s.store.ApplyBar(k.Timeframe(), k.Candle(), k.IsClosed())
	return nil
}

// onProgress folds the frame's rolling trade window into the log; only
// trades not seen before (the log dedups by timestamp) extend the
// configured timelines.
func (s *Session) onProgress(msg protocol.Message) error {
	p, ok := msg.(*protocol.Progress)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}

	for _, t := range s.trades.InsertAll(p.LatestTrades) {
		for _, tf := range s.timeframes {
			s.store.ApplyTrade(tf, t)
		}
	}

	s.mu.Lock()
	s.progress = p.Progress
	s.stats.LastPrice = p.CurrentPrice
	s.stats.TradeCount = p.Trades
	s.updates++
	s.mu.Unlock()
	return nil
}

// onFinal rebuilds every configured timeline from the complete tape,
// which supersedes the incremental view built from progress windows.
func (s *Session) onFinal(msg protocol.Message) error {
	f, ok := msg.(*protocol.Final)
	if !ok {
		return fmt.Errorf("feed: unexpected payload %T", msg)
	}

	s.trades.InsertAll(f.Trades)
	for _, tf := range s.timeframes {
		s.store.Backfill(tf, f.Trades)
	}

	s.mu.Lock()
	s.progress = 100
	s.runDone = true
	s.stats.LastPrice = f.FinalPrice
	s.stats.TradeCount = f.TotalTrades
	s.updates++
	s.mu.Unlock()
	return nil
}

// ── views ────────────────────────────────────────────────────────────────────

// Candles returns the closed history plus live candle for a timeframe.
func (s *Session) Candles(timeframe string) []market.Candle {
	return s.store.View(timeframe)
}

// BatchCandles re-aggregates the bounded trade log for a timeframe
// that was never streamed pre-aggregated bars.
func (s *Session) BatchCandles(timeframe string) []market.Candle {
	return candles.Aggregate(s.trades.Trades(), market.DurationMs(timeframe))
}

// RecentTrades returns the buffered trade window, oldest first.
func (s *Session) RecentTrades() []market.Trade {
	return s.trades.Trades()
}

// Stats returns the latest top-of-book summary.
func (s *Session) Stats() market.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// OrderBook returns the latest depth snapshot, or nil before the first
// one arrives.
func (s *Session) OrderBook() *protocol.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book
}

// Agents returns the current agent roster.
func (s *Session) Agents() []protocol.AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents
}

// LastAgentResponse returns the most recent command result, or nil.
func (s *Session) LastAgentResponse() *protocol.AgentResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResp
}

// Progress reports the batch run completion percentage and whether the
// terminal frame arrived.
func (s *Session) Progress() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, s.runDone
}

// State reports the connection lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates reports how many state-bearing frames have been applied.
func (s *Session) Updates() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}
