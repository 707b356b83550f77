// Package batch runs a simulation on the upstream HTTP API and
// consumes the line-delimited streamed response — progress frames while
// the run executes, then one terminal frame with the full tape.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/marksim/candlefeed/feed"
)

const runPath = "/api/simulation/run"

// readChunk is the transfer unit; line re-framing happens in the
// session's decoder, not here.
const readChunk = 4096

// AgentConfig requests a number of agents of one type.
type AgentConfig struct {
	Type   string             `json:"type"`
	Count  int                `json:"count"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Request is the body of a batch run.
type Request struct {
	Agents          []AgentConfig `json:"agents"`
	DurationSeconds int           `json:"duration_seconds"`
	InitialPrice    float64       `json:"initial_price"`
}

// Run posts the request and streams the response body through sess
// until end-of-stream. The session ends disconnected either way; a
// non-nil error means the transport failed before the stream finished.
func Run(ctx context.Context, client *http.Client, baseURL string, run Request, sess *feed.Session) error {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("batch: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+runPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("batch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("batch: post run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("batch: unexpected status %s", resp.Status)
	}

	sess.MarkConnected()
	defer sess.CloseStream()

	buf := make([]byte, readChunk)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			sess.Feed(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("batch: read stream: %w", err)
		}
	}
}
