package firehose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/events"
	"github.com/google/go-querystring/query"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/metrics"
)

const subscribeReposPath = "/xrpc/com.atproto.sync.subscribeRepos"

// StreamError is an error frame sent by the relay, such as FutureCursor or
// ConsumerTooSlow. The relay closes the stream after sending one.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "relay error: " + e.Code
	}
	return "relay error: " + e.Code + ": " + e.Message
}

// Source produces commit events starting after cursor, or from the live head
// when cursor is nil. Stream blocks until the stream ends or ctx is done.
type Source interface {
	Stream(ctx context.Context, cursor *int64, out chan<- *Commit) error
}

// RelayStream reads com.atproto.sync.subscribeRepos frames over a WebSocket.
type RelayStream struct {
	endpoint    string
	readTimeout time.Duration
	dialer      websocket.Dialer
	recorder    metrics.Recorder

	connected      atomic.Bool
	eventsReceived atomic.Int64
	bytesReceived  atomic.Int64
}

var _ Source = (*RelayStream)(nil)

// NewRelayStream creates a stream reader for the relay in config.
func NewRelayStream(config *Config, recorder metrics.Recorder) *RelayStream {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &RelayStream{
		endpoint:    config.Endpoint,
		readTimeout: config.ReadTimeout,
		dialer:      websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		recorder:    recorder,
	}
}

// IsConnected returns true while a relay connection is open.
func (s *RelayStream) IsConnected() bool {
	return s.connected.Load()
}

// Stats returns stream statistics
func (s *RelayStream) Stats() (eventsReceived, bytesReceived int64) {
	return s.eventsReceived.Load(), s.bytesReceived.Load()
}

type subscribeParams struct {
	Cursor *int64 `url:"cursor,omitempty"`
}

func (s *RelayStream) subscribeURL(cursor *int64) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", err
	}
	q, err := query.Values(subscribeParams{Cursor: cursor})
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + subscribeReposPath
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Stream connects to the relay and forwards commit events to out in stream
// order until the connection fails or ctx is done.
func (s *RelayStream) Stream(ctx context.Context, cursor *int64, out chan<- *Commit) error {
	wsURL, err := s.subscribeURL(cursor)
	if err != nil {
		return fmt.Errorf("failed to build subscribe URL: %w", err)
	}

	log.Info().Str("url", wsURL).Msg("firehose: connecting to relay")

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.connected.Store(true)
	s.recorder.FirehoseConnected(true)
	log.Info().Str("endpoint", s.endpoint).Msg("firehose: connected to relay")

	// ReadMessage does not watch ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		s.connected.Store(false)
		s.recorder.FirehoseConnected(false)
	}()

	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("firehose: relay closed the stream")
				return nil
			}
			s.recorder.FirehoseError()
			return fmt.Errorf("read error: %w", err)
		}

		s.eventsReceived.Add(1)
		s.bytesReceived.Add(int64(len(message)))
		s.recorder.FirehoseEvent(len(message))

		commit, err := decodeFrame(message)
		if err != nil {
			s.recorder.FirehoseError()
			var streamErr *StreamError
			if errors.As(err, &streamErr) {
				return err
			}
			log.Warn().Err(err).Msg("firehose: failed to decode frame")
			continue
		}
		if commit == nil {
			continue
		}

		select {
		case out <- commit:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeFrame decodes one binary frame. It returns a nil commit for
// non-commit messages (identity, account, info, sync).
func decodeFrame(message []byte) (*Commit, error) {
	r := bytes.NewReader(message)

	var header events.EventHeader
	if err := header.UnmarshalCBOR(r); err != nil {
		return nil, fmt.Errorf("failed to decode frame header: %w", err)
	}

	switch header.Op {
	case events.EvtKindMessage:
	case events.EvtKindErrorFrame:
		var frame events.ErrorFrame
		if err := frame.UnmarshalCBOR(r); err != nil {
			return nil, &StreamError{Code: "Unknown", Message: err.Error()}
		}
		return nil, &StreamError{Code: frame.Error, Message: frame.Message}
	default:
		return nil, fmt.Errorf("unexpected frame op %d", header.Op)
	}

	if header.MsgType != "#commit" {
		return nil, nil
	}

	var evt comatproto.SyncSubscribeRepos_Commit
	if err := evt.UnmarshalCBOR(r); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	return commitFromEvent(&evt), nil
}
