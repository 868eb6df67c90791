package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketStream presents a WebSocket connection as an NDJSON stream: each
// text or binary message becomes one newline-terminated line.
type WebSocketStream struct {
	conn      *websocket.Conn
	cur       io.Reader
	stop      func() bool
	closeOnce sync.Once
	closeErr  error
}

// DialFrames connects to wsURL. Cancelling ctx closes the connection, which
// ends any blocked Read.
func DialFrames(ctx context.Context, wsURL string, header http.Header) (*WebSocketStream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if serr := checkStatus(resp); serr != nil {
				return nil, fmt.Errorf("dial %s: %w", wsURL, serr)
			}
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	s := &WebSocketStream{conn: conn}
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s, nil
}

// Send writes v as one JSON text message
func (s *WebSocketStream) Send(v any) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *WebSocketStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if s.cur != nil {
			n, err := s.cur.Read(p)
			if n > 0 {
				return n, nil
			}
			if errors.Is(err, io.EOF) {
				s.cur = nil
				p[0] = '\n'
				return 1, nil
			}
			if err != nil {
				return 0, err
			}
			continue
		}

		_, r, err := s.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		s.cur = r
	}
}

// Close sends a close frame when possible and releases the connection
func (s *WebSocketStream) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// WebSocketURL derives the agent's WebSocket endpoint from the base URL
func (c *Client) WebSocketURL(agentID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat/agent/" + agentID
	u.RawPath = ""
	return u.String(), nil
}

// SendMessageWS starts a chat turn over WebSocket. wsURL may be empty to use
// the endpoint derived from the base URL.
func (c *Client) SendMessageWS(ctx context.Context, wsURL, agentID string, req SendRequest) (io.ReadCloser, error) {
	if wsURL == "" {
		derived, err := c.WebSocketURL(agentID)
		if err != nil {
			return nil, err
		}
		wsURL = derived
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, err := DialFrames(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if err := ws.Send(req.body()); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send message: %w", err)
	}
	return ws, nil
}

var _ io.ReadCloser = (*WebSocketStream)(nil)

// WebSocketClient is a Client whose chat turns travel over WebSocket.
// Resume and the REST calls still use HTTP.
type WebSocketClient struct {
	*Client
	URL string
}

// OverWebSocket returns c with SendMessage routed to wsURL, or to the
// derived endpoint when wsURL is empty
func (c *Client) OverWebSocket(wsURL string) *WebSocketClient {
	return &WebSocketClient{Client: c, URL: wsURL}
}

func (w *WebSocketClient) SendMessage(ctx context.Context, agentID string, req SendRequest) (io.ReadCloser, error) {
	return w.SendMessageWS(ctx, w.URL, agentID, req)
}
