package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazelment/quill/stream"
)

const wsReadIdleTimeout = 120 * time.Second

// StreamDialer opens live event streams over websocket. It implements
// StreamOpener.
type StreamDialer struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
}

// NewStreamDialer creates a dialer for the given server. baseURL may use
// an http(s) scheme; it is rewritten to ws(s) at dial time.
func NewStreamDialer(baseURL, token string) *StreamDialer {
	return &StreamDialer{
		baseURL: baseURL,
		token:   token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// OpenStream connects to the agent's event stream. A valid cursor is sent
// as replay parameters so the server delivers only events strictly after
// that position.
func (d *StreamDialer) OpenStream(ctx context.Context, agentID string, after stream.Cursor) (stream.Source, error) {
	u, err := url.Parse(wsScheme(d.baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	u.Path = "/v1/agents/" + agentID + "/stream"
	q := u.Query()
	if after.Valid() {
		q.Set("after_run_id", after.RunID)
		q.Set("after_seq", strconv.FormatInt(after.Seq, 10))
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}

	conn, _, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsReadIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadIdleTimeout))
		return nil
	})
	return newWSSource(conn), nil
}

func wsScheme(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// wsSource adapts one websocket connection to stream.Source. A read loop
// decodes frames into a channel so Next can honor context cancellation
// while the blocking read sits in its own goroutine.
type wsSource struct {
	conn   *websocket.Conn
	events chan stream.Event

	mu      sync.Mutex
	readErr error
	done    chan struct{}
	quit    chan struct{}

	closeOnce sync.Once
}

func newWSSource(conn *websocket.Conn) *wsSource {
	s := &wsSource{
		conn:   conn,
		events: make(chan stream.Event, 16),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *wsSource) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.readErr = io.EOF
			} else {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsReadIdleTimeout))
		evs, err := decodeStreamEvents(data)
		if err != nil {
			// A frame that does not parse at all is skipped; the stream
			// keeps going.
			continue
		}
		for _, ev := range evs {
			select {
			case s.events <- ev:
			case <-s.quit:
				return
			}
		}
	}
}

// Next returns the next decoded event. It returns io.EOF when the server
// closed the connection, with or without an explicit stop frame having
// been delivered first.
func (s *wsSource) Next(ctx context.Context) (stream.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		// Unblock the transport immediately rather than waiting for the
		// next frame.
		_ = s.Close()
		return nil, ctx.Err()
	case <-s.done:
		// Drain events decoded before the reader stopped.
		select {
		case ev := <-s.events:
			return ev, nil
		default:
		}
		s.mu.Lock()
		err := s.readErr
		s.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
}

func (s *wsSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
