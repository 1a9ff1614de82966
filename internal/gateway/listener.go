package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds NATS listener configuration.
type Config struct {
	// Subject prefixes every operation subject, e.g. "fhe" gives
	// "fhe.encrypt.boolean".
	Subject string
	// QueueGroup load-balances requests across server instances.
	QueueGroup string
	// Concurrency is the number of requests handled at once.
	Concurrency int
	// BufferSize is the number of pending requests held per listener.
	BufferSize int
	// RequestTimeout bounds a single request. Zero disables the bound.
	RequestTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Subject:     "fhe",
		QueueGroup:  "fhe-server",
		Concurrency: 8,
		BufferSize:  256,
	}
}

type request struct {
	msg *nats.Msg
	ep  endpoint
}

// Listener serves API requests arriving over NATS request-reply.
type Listener struct {
	cfg    Config
	conn   *nats.Conn
	api    *API
	logger *zap.Logger

	served atomic.Uint64
	mu     sync.Mutex
	subs   []*nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener creates a NATS listener on an established connection.
func NewListener(cfg Config, conn *nats.Conn, api *API, logger *zap.Logger) *Listener {
	defaults := DefaultConfig()
	if cfg.Subject == "" {
		cfg.Subject = defaults.Subject
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Listener{
		cfg:    cfg,
		conn:   conn,
		api:    api,
		logger: logger.With(zap.String("transport", "nats")),
	}
}

// Subject returns the full subject an operation is served on.
func (l *Listener) Subject(operation string) string {
	return l.cfg.Subject + "." + operation
}

// Start subscribes to every operation subject.
func (l *Listener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	requests := make(chan request, l.cfg.BufferSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ep := range l.api.endpoints() {
		subject := l.Subject(ep.subject)
		sub, err := l.conn.QueueSubscribe(subject, l.cfg.QueueGroup, func(msg *nats.Msg) {
			select {
			case requests <- request{msg: msg, ep: ep}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			l.unsubscribe()
			l.cancel()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		l.subs = append(l.subs, sub)
	}
	if err := l.conn.Flush(); err != nil {
		l.unsubscribe()
		l.cancel()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	l.logger.Info("starting nats listener",
		zap.String("subject", l.cfg.Subject+".>"),
		zap.String("queue_group", l.cfg.QueueGroup),
		zap.Int("concurrency", l.cfg.Concurrency),
	)

	l.wg.Add(l.cfg.Concurrency)
	for i := 0; i < l.cfg.Concurrency; i++ {
		go l.processRequests(ctx, requests)
	}
	return nil
}

// Stop unsubscribes and waits for in-flight requests.
func (l *Listener) Stop() error {
	l.mu.Lock()
	l.unsubscribe()
	l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return nil
}

// Served returns the number of requests answered.
func (l *Listener) Served() uint64 {
	return l.served.Load()
}

func (l *Listener) unsubscribe() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Debug("unsubscribe failed", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	l.subs = nil
}

func (l *Listener) processRequests(ctx context.Context, requests <-chan request) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			l.handleRequest(ctx, req)
		}
	}
}

func (l *Listener) handleRequest(ctx context.Context, req request) {
	logger := l.logger.With(zap.String("subject", req.msg.Subject))
	if req.msg.Reply == "" {
		logger.Warn("dropping request without reply subject")
		return
	}

	start := time.Now()
	logger.Debug("processing request")

	// In-flight requests finish after Stop.
	ctx = context.WithoutCancel(ctx)
	if l.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.RequestTimeout)
		defer cancel()
	}

	var reply any
	resp, err := req.ep.call(ctx, req.msg.Data)
	if err != nil {
		_, body := errorResponse(err)
		logger.Debug("request failed", zap.String("code", body.Code), zap.Error(err))
		reply = body
	} else {
		reply = resp
	}

	data, err := json.Marshal(reply)
	if err != nil {
		logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	if err := req.msg.Respond(data); err != nil {
		logger.Error("failed to send reply", zap.Error(err))
		return
	}

	l.served.Add(1)
	logger.Debug("request served", zap.Duration("duration", time.Since(start)))
}
