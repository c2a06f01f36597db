package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dag-stitch/logger"
	"dag-stitch/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrStreamClosed means the notification stream ended; the daemon cannot continue without it
var ErrStreamClosed = errors.New("block notification stream closed")

const blockAddedEvent = "blockAdded"

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type notification struct {
	Type  string              `json:"type"`
	Block *models.LedgerBlock `json:"block"`
}

// Subscription delivers block-added events in arrival order. It is not restartable.
type Subscription struct {
	conn   *websocket.Conn
	blocks chan models.LedgerBlock

	mu  sync.Mutex
	err error
}

// Subscribe opens the websocket and requests block-added notifications
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	if err := conn.WriteJSON(subscribeRequest{Method: "subscribe", Params: []string{blockAddedEvent}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &Subscription{conn: conn, blocks: make(chan models.LedgerBlock, 64)}
	go s.readLoop(ctx)
	return s, nil
}

// Blocks is closed when the stream ends
func (s *Subscription) Blocks() <-chan models.LedgerBlock {
	return s.blocks
}

// Err returns why the stream ended. It is always non-nil once Blocks is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the connection; Blocks closes shortly after
func (s *Subscription) Close() error {
	return s.conn.Close()
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.blocks)
	defer s.conn.Close()

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("%w: %v", ErrStreamClosed, err))
			return
		}
		var n notification
		if err := json.Unmarshal(data, &n); err != nil {
			logger.Logger.Warn("Malformed notification", zap.Error(err))
			continue
		}
		if n.Type != blockAddedEvent || n.Block == nil {
			logger.Logger.Debug("Ignoring notification", zap.String("type", n.Type))
			continue
		}
		select {
		case s.blocks <- *n.Block:
		case <-ctx.Done():
			s.setErr(fmt.Errorf("%w: %v", ErrStreamClosed, ctx.Err()))
			return
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
