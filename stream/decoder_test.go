package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marksim/candlefeed/protocol"
)

func TestFeedSplitMidLine(t *testing.T) {
	d := NewDecoder()

	chunk1 := []byte(`{"type":"progress","progress":10,"trades":0,"current_price":100,"latest_trades":[]}` + "\n" + `{bad json` + "\n" + `{"type":"final","tra`)
	chunk2 := []byte(`des":[],"final_price":100,"total_trades":0}` + "\n")

	msgs := d.Feed(chunk1)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.KindProgress, msgs[0].Kind())
	require.Equal(t, 1, d.Malformed(), "corrupt line logged and skipped")

	msgs = d.Feed(chunk2)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.KindFinal, msgs[0].Kind())
	require.Equal(t, 1, d.Malformed())
}

func TestFeedOneByteAtATime(t *testing.T) {
	d := NewDecoder()
	line := `{"type":"agent_response","action":"created","agent_id":"a","success":true}` + "\n"

	var msgs []protocol.Message
	for i := 0; i < len(line); i++ {
		msgs = append(msgs, d.Feed([]byte{line[i]})...)
	}
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.KindAgentResponse, msgs[0].Kind())
}

func TestFeedSkipsBlankLines(t *testing.T) {
	d := NewDecoder()
	msgs := d.Feed([]byte("\n   \n\t\n{\"type\":\"agent_response\",\"action\":\"x\",\"agent_id\":\"a\",\"success\":false}\n\n"))
	require.Len(t, msgs, 1)
	require.Zero(t, d.Malformed())
}

func TestFeedHandlesCRLF(t *testing.T) {
	d := NewDecoder()
	msgs := d.Feed([]byte("{\"type\":\"agent_response\",\"action\":\"x\",\"agent_id\":\"a\",\"success\":true}\r\n"))
	require.Len(t, msgs, 1)
}

func TestFeedMultipleLinesPerChunk(t *testing.T) {
	d := NewDecoder()
	chunk := []byte(`{"type":"agent_response","action":"a","agent_id":"1","success":true}` + "\n" +
		`{"e":"kline","E":0,"s":"BTC/USD","k":{"t":0,"T":1000,"s":"BTC/USD","i":"1s","o":1,"c":1,"h":1,"l":1,"v":1,"n":1,"x":false}}` + "\n")

	msgs := d.Feed(chunk)
	require.Len(t, msgs, 2)
	require.Equal(t, protocol.KindAgentResponse, msgs[0].Kind())
	require.Equal(t, protocol.KindKline, msgs[1].Kind())
}

func TestCloseDiscardsUnterminatedTail(t *testing.T) {
	d := NewDecoder()
	msgs := d.Feed([]byte(`{"type":"agent_response","action":"x","agent_id":"a","success":true}`)) // no terminator
	require.Empty(t, msgs)

	d.Close()

	// The tail is gone: completing the line later yields nothing valid.
	msgs = d.Feed([]byte("}\n"))
	require.Empty(t, msgs)
}
