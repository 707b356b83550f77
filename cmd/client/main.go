// client renders a live terminal candlestick chart from a
// push-protocol feed.
package main

import (
	"context"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/marksim/candlefeed/adapter/push"
	"github.com/marksim/candlefeed/feed"
	"github.com/marksim/candlefeed/model/market"
	"github.com/marksim/candlefeed/protocol"
)

func main() {
	url := getEnv("FEED_URL", "ws://localhost:8765/stream")
	timeframe := getEnv("TIMEFRAME", "1m")
	nKline := getEnvInt("N_KLINE", 48)

	sess := feed.NewSession(timeframe)

	// The session's own kline handler runs first (registration order),
	// so by the time this one fires the store already holds the bar.
	views := make(chan []market.Candle, 16)
	sess.Router().Subscribe(protocol.KindKline, func(msg protocol.Message) error {
		k, ok := msg.(*protocol.Kline)
		if !ok || k.Timeframe() != timeframe {
			return nil
		}
		select {
		case views <- sess.Candles(timeframe):
		default: // renderer is behind; skip this snapshot
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := push.Dial(ctx, url, sess)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("client: connect")
	}
	defer conn.Close()

	p := tea.NewProgram(
		newModel(sess, timeframe, nKline, views),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatal().Err(err).Msg("client: tui")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
