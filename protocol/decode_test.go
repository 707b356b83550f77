package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMarketData(t *testing.T) {
	line := `{"type":"market_data","timestamp":1000000,"symbol":"BTC/USD",` +
		`"last_price":50000.5,"bid_price":49999,"ask_price":50002,` +
		`"volume_24h":123.45,"trade_count":42}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)
	require.Equal(t, KindMarketData, msg.Kind())

	m := msg.(*MarketData)
	require.Equal(t, int64(1_000_000), m.Timestamp)
	require.Equal(t, "50000.5", m.LastPrice.String())
	require.Equal(t, 42, m.TradeCount)
	require.Equal(t, "3", m.Stats().Spread().String())
}

func TestDecodeOrderBook(t *testing.T) {
	line := `{"type":"orderbook","bids":[[49999,1.5],[49998,2]],"asks":[[50001,1]],` +
		`"spread":2,"mid_price":50000,"timestamp":123}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)

	b := msg.(*OrderBook)
	require.Len(t, b.Bids, 2)
	require.Len(t, b.Asks, 1)
	require.Equal(t, "49999", b.Bids[0].Price().String())
	require.Equal(t, "1.5", b.Bids[0].Size().String())
	require.Equal(t, "50000", b.MidPrice.String())
}

func TestDecodeKline(t *testing.T) {
	line := `{"e":"kline","E":60000,"s":"BTC/USD","k":{"t":60000,"T":120000,` +
		`"s":"BTC/USD","i":"1m","o":100,"c":103.5,"h":104,"l":99.5,"v":12.25,"n":7,"x":true}}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)
	require.Equal(t, KindKline, msg.Kind())

	k := msg.(*Kline)
	require.Equal(t, "1m", k.Timeframe())
	require.True(t, k.IsClosed())

	c := k.Candle()
	require.Equal(t, int64(60_000), c.BucketStart)
	require.Equal(t, "100", c.Open.String())
	require.Equal(t, "103.5", c.Close.String())
	require.Equal(t, "12.25", c.Volume.String())
}

func TestDecodeKlineStringPrices(t *testing.T) {
	// Binance proper quotes its prices; the decoder accepts both.
	line := `{"e":"kline","E":1,"s":"BTCUSDT","k":{"t":0,"T":59999,"s":"BTCUSDT",` +
		`"i":"1m","o":"100.0","c":"101.0","h":"102.0","l":"99.0","v":"5.5","n":3,"x":false}}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)
	k := msg.(*Kline)
	require.False(t, k.IsClosed())
	require.Equal(t, "102", k.Candle().High.String())
}

func TestDecodeAgentConfigsFlattensParams(t *testing.T) {
	line := `{"type":"agent_configs","configs":[` +
		`{"agent_id":"mm_0","agent_type":"MarketMaker","spread":0.01,"order_size":1.5,"label":"x"},` +
		`{"agent_id":"nt_1","agent_type":"NoiseTrader","trade_probability":0.1}]}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)

	cfgs := msg.(*AgentConfigs).Configs
	require.Len(t, cfgs, 2)
	require.Equal(t, "mm_0", cfgs[0].AgentID)
	require.Equal(t, "MarketMaker", cfgs[0].AgentType)
	require.Equal(t, 0.01, cfgs[0].Params["spread"])
	require.Equal(t, 1.5, cfgs[0].Params["order_size"])
	require.NotContains(t, cfgs[0].Params, "label", "non-numeric extras dropped")
	require.Equal(t, 0.1, cfgs[1].Params["trade_probability"])
}

func TestDecodeAgentResponse(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"agent_response","action":"created","agent_id":"mm_9","success":true}`))
	require.NoError(t, err)
	r := msg.(*AgentResponse)
	require.Equal(t, "created", r.Action)
	require.True(t, r.Success)
}

func TestDecodeProgress(t *testing.T) {
	line := `{"type":"progress","progress":40,"trades":120,"current_price":50123.5,` +
		`"latest_trades":[{"timestamp":1500000,"price":50123.5,"size":0.4}]}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)

	p := msg.(*Progress)
	require.Equal(t, 40.0, p.Progress)
	require.Len(t, p.LatestTrades, 1)
	require.Equal(t, int64(1_500_000), p.LatestTrades[0].Timestamp)
	require.Equal(t, "0.4", p.LatestTrades[0].Size.String())
}

func TestDecodeFinal(t *testing.T) {
	line := `{"type":"final","trades":[{"timestamp":0,"price":100,"size":1}],` +
		`"orderbook_states":[{"timestamp":0}],"agent_stats":[{"agent_id":"mm_0"}],` +
		`"final_price":101.25,"total_trades":1}`

	msg, err := Decode([]byte(line))
	require.NoError(t, err)

	f := msg.(*Final)
	require.Len(t, f.Trades, 1)
	require.Len(t, f.OrderbookStates, 1)
	require.Len(t, f.AgentStats, 1)
	require.Equal(t, "101.25", f.FinalPrice.String())
	require.Equal(t, 1, f.TotalTrades)
}

func TestDecodeDiscriminantPriority(t *testing.T) {
	// `type` wins even when an `e` field is present.
	msg, err := Decode([]byte(`{"type":"agent_response","e":"kline","action":"x","agent_id":"a","success":false}`))
	require.NoError(t, err)
	require.Equal(t, KindAgentResponse, msg.Kind())

	// An unrecognized `type` is unknown even with a kline-shaped `e`.
	msg, err = Decode([]byte(`{"type":"bogus","e":"kline"}`))
	require.NoError(t, err)
	u, ok := msg.(*Unknown)
	require.True(t, ok)
	require.Equal(t, "bogus", u.Tag)
}

func TestDecodeUnknownEvent(t *testing.T) {
	msg, err := Decode([]byte(`{"e":"depthUpdate","E":1}`))
	require.NoError(t, err)
	u := msg.(*Unknown)
	require.Equal(t, "depthUpdate", u.Tag)
	require.JSONEq(t, `{"e":"depthUpdate","E":1}`, string(u.Raw))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{bad json`))
	require.Error(t, err)

	// A recognized discriminant with a payload of the wrong shape is an error.
	_, err = Decode([]byte(`{"type":"progress","progress":"not-a-number"}`))
	require.Error(t, err)
}
