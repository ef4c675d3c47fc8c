package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/go-kit/log"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// DefaultStreamEndpoint is the public Hermes websocket feed.
const DefaultStreamEndpoint = "wss://hermes.pyth.network/ws"

const (
	// streamPingPeriod is the interval between websocket ping frames.
	streamPingPeriod = 15 * time.Second

	// streamWriteTimeout bounds control-frame writes.
	streamWriteTimeout = 5 * time.Second
)

// ErrStreamClosed is returned by Price after the stream has shut down.
var ErrStreamClosed = errors.New("oracle: price stream closed")

// subscribeRequest is the message sent to a Hermes-style websocket feed
// immediately after connecting.
type subscribeRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// streamMessage is one inbound websocket frame. Frames whose type is not
// price_update are acknowledged and dropped.
type streamMessage struct {
	Type      string      `json:"type"`
	PriceFeed *hermesFeed `json:"price_feed"`
}

// StreamService maintains the most recent price pushed over a websocket
// feed. Reading the latest pushed sample is the service-world analog of an
// on-chain oracle read: each Price call observes whatever the publisher most
// recently committed, with no separate caching policy on top.
type StreamService struct {
	feedID   string
	conn     *websocket.Conn
	logger   log.Logger
	validate *validator.Validate

	// lock guards latest, seeded and readErr
	lock    sync.RWMutex
	latest  pythusd.PriceData
	seeded  bool
	readErr error

	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewStreamService dials a Hermes-style websocket endpoint, subscribes to one
// feed and starts consuming updates. An empty endpoint selects the public
// Hermes feed. Close must be called to release the connection.
func NewStreamService(ctx context.Context, endpoint, feedID string, logger log.Logger) (*StreamService, error) {
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing price stream: %w", err)
	}

	sub, err := json.Marshal(subscribeRequest{Type: "subscribe", IDs: []string{feedID}})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encoding subscribe request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to feed: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &StreamService{
		feedID:   feedID,
		conn:     conn,
		logger:   logger,
		validate: validator.New(),
		cancel:   cancel,
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.pingLoop(ctx)

	s.logger.Log("msg", "price stream subscribed", "feed", feedID)
	return s, nil
}

// Price returns the most recently pushed sample. It fails until the first
// update arrives and after the stream has terminated.
func (s *StreamService) Price(_ context.Context) (pythusd.PriceData, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.readErr != nil {
		return pythusd.PriceData{}, s.readErr
	}
	if !s.seeded {
		return pythusd.PriceData{}, errors.New("oracle: no price update received yet")
	}
	return s.latest, nil
}

// Close shuts down the stream and waits for its goroutines to exit.
func (s *StreamService) Close() error {
	s.once.Do(func() {
		s.cancel()
		deadline := time.Now().Add(streamWriteTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	s.wg.Wait()
	return nil
}

// readLoop consumes frames until the connection dies or the context ends.
func (s *StreamService) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.lock.Lock()
			if ctx.Err() != nil {
				s.readErr = ErrStreamClosed
			} else {
				s.readErr = fmt.Errorf("oracle: price stream terminated: %w", err)
				s.logger.Log("msg", "price stream terminated", "error", err)
			}
			s.lock.Unlock()
			return
		}
		if err := s.handleMessage(raw); err != nil {
			// A malformed frame is logged and skipped; the feed as a whole
			// stays usable on the last good sample.
			s.logger.Log("msg", "dropping stream message", "error", err)
		}
	}
}

// handleMessage parses one frame and, for price updates, stores the sample.
func (s *StreamService) handleMessage(raw []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decoding stream message: %w", err)
	}
	if msg.Type != "price_update" || msg.PriceFeed == nil {
		return nil
	}
	if err := s.validate.Struct(msg.PriceFeed); err != nil {
		return fmt.Errorf("validating price update: %w", err)
	}
	if !feedMatches(msg.PriceFeed.ID, s.feedID) {
		return fmt.Errorf("unexpected feed id %v", msg.PriceFeed.ID)
	}

	data, err := parseFeed(*msg.PriceFeed)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.latest = data
	s.seeded = true
	s.lock.Unlock()
	return nil
}

// pingLoop keeps the connection alive.
func (s *StreamService) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Log("msg", "ping failed", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
