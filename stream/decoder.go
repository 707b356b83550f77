// Package stream carries frames from the transports to their
// consumers: a Decoder that re-frames an arbitrarily chunked byte
// stream into parsed messages, and a Router that fans each message out
// to the handlers registered for its kind.
package stream

import (
	"bytes"

	"github.com/rs/zerolog/log"

	"github.com/marksim/candlefeed/protocol"
)

// Decoder frames a line-delimited JSON byte stream. Chunks may split
// lines at any byte boundary; the trailing unterminated segment is held
// until the next Feed call.
//
// A Decoder belongs to exactly one connection and must not be fed
// concurrently.
type Decoder struct {
	buf       []byte
	malformed int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffer and returns one message per
// complete, parseable line. Blank lines are skipped; a line that fails
// to decode is logged and skipped without aborting the stream.
func (d *Decoder) Feed(chunk []byte) []protocol.Message {
	d.buf = append(d.buf, chunk...)

	var out []protocol.Message
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(d.buf[:i])
		d.buf = d.buf[i+1:]

		if len(line) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			d.malformed++
			log.Warn().Err(err).Msg("stream: skipping malformed line")
			continue
		}
		out = append(out, msg)
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Close releases the buffer when the transport signals end-of-stream.
// A residual line without a trailing terminator is discarded, not
// parsed.
func (d *Decoder) Close() {
	if n := len(d.buf); n > 0 {
		log.Debug().Int("bytes", n).Msg("stream: discarding unterminated trailing data")
	}
	d.buf = nil
}

// Malformed reports how many lines failed to decode so far.
func (d *Decoder) Malformed() int {
	return d.malformed
}
