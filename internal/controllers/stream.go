package controllers

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"tftrader/models"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
)

// StreamController keeps one websocket connection to the exchange alive for
// the whole process lifetime. Disconnects are absorbed: the controller
// reconnects with backoff, re-issues every recorded subscription and then
// pushes a resync marker so the consumer can refresh its snapshot before
// trusting deltas again.
type StreamController struct {
	url    string
	logger *logrus.Logger

	out    chan []byte
	resync chan struct{}

	mu      sync.RWMutex
	conn    *websocket.Conn
	subs    []string
	status  models.TransportStatus
	lastHB  time.Time
	writeMu sync.Mutex

	subID      int64
	reconnects int64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
}

func NewStreamController(url string, logger *logrus.Logger) *StreamController {
	return &StreamController{
		url:          url,
		logger:       logger,
		out:          make(chan []byte, 1024),
		resync:       make(chan struct{}, 1),
		status:       models.TransportDisconnected,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

func (s *StreamController) Out() <-chan []byte {
	return s.out
}

// Resync signals once per (re)connection; signals coalesce while unread.
func (s *StreamController) Resync() <-chan struct{} {
	return s.resync
}

func (s *StreamController) State() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]string, len(s.subs))
	copy(subs, s.subs)

	return models.ConnectionState{
		Status:            s.status,
		LastHeartbeatAt:   s.lastHB,
		SubscribedStreams: subs,
		Reconnects:        atomic.LoadInt64(&s.reconnects),
	}
}

// Subscribe records topics and, when connected, sends the subscribe frame.
// Recorded topics are re-issued automatically after every reconnect.
func (s *StreamController) Subscribe(topics ...string) {
	s.mu.Lock()
	var fresh []string
	for _, t := range topics {
		known := false
		for _, have := range s.subs {
			if have == t {
				known = true
				break
			}
		}
		if !known {
			s.subs = append(s.subs, t)
			fresh = append(fresh, t)
		}
	}
	connected := s.conn != nil
	s.mu.Unlock()

	if connected && len(fresh) > 0 {
		if err := s.sendSubscribe(fresh); err != nil {
			s.logger.WithError(err).Warn("subscribe frame failed, will resubscribe on reconnect")
		}
	}
}

func (s *StreamController) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop(ctx)
}

func (s *StreamController) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConn()
	s.wg.Wait()
}

func (s *StreamController) runLoop(ctx context.Context) {
	defer s.wg.Done()

	bo := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	first := true

	for {
		select {
		case <-ctx.Done():
			s.setStatus(models.TransportDisconnected)
			return
		default:
		}

		s.setStatus(models.TransportConnecting)

		if err := s.connect(ctx); err != nil {
			s.logger.
				WithError(err).
				WithField("url", s.url).
				Warn("stream connect failed")

			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Duration()):
				continue
			}
		}

		bo.Reset()
		if !first {
			atomic.AddInt64(&s.reconnects, 1)
		}
		first = false

		s.setStatus(models.TransportConnected)
		s.signalResync()

		pingCtx, stopPing := context.WithCancel(ctx)
		go s.pingLoop(pingCtx)

		s.readLoop(ctx)

		stopPing()
		s.closeConn()
		s.setStatus(models.TransportDisconnected)
	}
}

func (s *StreamController) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetPongHandler(func(string) error {
		s.touchHeartbeat()
		return conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	subs := make([]string, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if len(subs) > 0 {
		if err := s.sendSubscribe(subs); err != nil {
			s.closeConn()
			return err
		}
	}

	s.logger.WithField("url", s.url).Info("stream connected")

	return nil
}

func (s *StreamController) readLoop(ctx context.Context) {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				s.logger.WithError(err).Warn("stream read error")
			}
			return
		}

		s.touchHeartbeat()

		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *StreamController) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}

			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.WithError(err).Warn("stream ping failed")
				return
			}
		}
	}
}

func (s *StreamController) sendSubscribe(topics []string) error {
	frame := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int64    `json:"id"`
	}{
		Method: "SUBSCRIBE",
		Params: topics,
		ID:     atomic.AddInt64(&s.subID, 1),
	}

	payload, err := json.Marshal(&frame)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *StreamController) signalResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (s *StreamController) setStatus(status models.TransportStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *StreamController) touchHeartbeat() {
	s.mu.Lock()
	s.lastHB = time.Now()
	s.mu.Unlock()
}

func (s *StreamController) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
