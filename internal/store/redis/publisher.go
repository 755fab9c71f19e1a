// Package redis publishes run events (signal snapshots, order intents,
// broker notifications and the final result) to Redis for dashboards and
// downstream consumers.
//
// Key layout, with prefix P and run ID R:
//
//	P:R:snapshot:<symbol>   latest snapshot per instrument (SET, TTL)
//	P:R:orders              intents and notifications (XADD, trimmed)
//	P:R:result              end-of-run result (SET)
//	P:pub:<kind>            PubSub channel per event kind
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
)

const (
	defaultPrefix       = "swing"
	defaultBatchSize    = 256
	defaultQueueSize    = 64
	defaultWriteTimeout = 2 * time.Second
	defaultStreamMaxLen = 10000
	defaultSnapshotTTL  = 24 * time.Hour
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	Prefix       string // key prefix, default "swing"
	RunID        string
	BatchSize    int           // snapshots buffered before a pipeline flush
	QueueSize    int           // batches waiting for the writer; more are dropped
	WriteTimeout time.Duration // per pipeline Exec
}

// Publisher batches run events into Redis pipelines behind a circuit
// breaker. Batches are written by a background goroutine; the replay
// goroutine only appends to a buffer and hands full batches over. Batches
// that find the queue full, fail, or arrive while the breaker is open are
// dropped and counted.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	cfg    PublisherConfig
	log    zerolog.Logger

	mu      sync.Mutex
	pending []model.Event
	dropped int64
	closed  bool

	batches chan []model.Event
	wg      sync.WaitGroup

	// write sends one batch; the pipeline writer unless replaced in tests.
	write func(ctx context.Context, batch []model.Event) error

	onBreaker func(State)
}

// NewPublisher connects to Redis, pings the server and starts the writer.
func NewPublisher(ctx context.Context, cfg PublisherConfig, log zerolog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := newPublisher(cfg, log)
	p.client = client
	p.write = p.pipeline
	p.start()
	p.log.Info().Str("addr", cfg.Addr).Str("run", cfg.RunID).Msg("connected")
	return p, nil
}

func newPublisher(cfg PublisherConfig, log zerolog.Logger) *Publisher {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	p := &Publisher{
		cb:      NewCircuitBreaker(5, 10*time.Second),
		cfg:     cfg,
		log:     log.With().Str("component", "redis").Logger(),
		pending: make([]model.Event, 0, cfg.BatchSize),
		batches: make(chan []model.Event, cfg.QueueSize),
	}
	p.cb.OnStateChange = func(from, to State) {
		p.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker")
		if p.onBreaker != nil {
			p.onBreaker(to)
		}
	}
	return p
}

func (p *Publisher) start() {
	p.wg.Add(1)
	go p.run()
}

// run writes batches until the queue is closed.
func (p *Publisher) run() {
	defer p.wg.Done()
	for batch := range p.batches {
		err := p.cb.Execute(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
			defer cancel()
			return p.write(ctx, batch)
		})
		if err == nil {
			continue
		}
		p.mu.Lock()
		p.dropped += int64(len(batch))
		p.mu.Unlock()
		if !errors.Is(err, ErrCircuitOpen) {
			p.log.Error().Err(err).Int("events", len(batch)).Msg("publish")
		}
	}
}

// Publish buffers ev. Snapshots are handed to the writer in batches; order
// and result events are handed over at once. Publish never waits on Redis.
func (p *Publisher) Publish(ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.dropped++
		return
	}
	p.pending = append(p.pending, ev)
	if ev.Kind != model.EventSnapshot || len(p.pending) >= p.cfg.BatchSize {
		p.handOffLocked()
	}
}

// Flush hands every buffered event to the writer without waiting for it.
func (p *Publisher) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.handOffLocked()
	}
}

func (p *Publisher) handOffLocked() {
	if len(p.pending) == 0 {
		return
	}
	batch := p.pending
	p.pending = make([]model.Event, 0, p.cfg.BatchSize)
	select {
	case p.batches <- batch:
	default:
		p.dropped += int64(len(batch))
	}
}

// Dropped returns how many events were dropped; final once Close returns.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// OnBreakerChange registers fn to be told about every breaker transition.
// Register before publishing. fn runs on the writer goroutine with the
// breaker lock held and must not publish.
func (p *Publisher) OnBreakerChange(fn func(State)) { p.onBreaker = fn }

// Client returns the underlying Redis client, nil for test publishers.
func (p *Publisher) Client() *goredis.Client { return p.client }

func (p *Publisher) snapshotKey(symbol string) string {
	return p.cfg.Prefix + ":" + p.cfg.RunID + ":snapshot:" + symbol
}

func (p *Publisher) ordersKey() string { return p.cfg.Prefix + ":" + p.cfg.RunID + ":orders" }
func (p *Publisher) resultKey() string { return p.cfg.Prefix + ":" + p.cfg.RunID + ":result" }

func (p *Publisher) channel(kind model.EventKind) string {
	return p.cfg.Prefix + ":pub:" + string(kind)
}

// pipeline writes a batch in one network roundtrip.
func (p *Publisher) pipeline(ctx context.Context, batch []model.Event) error {
	pipe := p.client.Pipeline()
	for i := range batch {
		ev := &batch[i]
		data := string(ev.JSON())
		switch ev.Kind {
		case model.EventSnapshot:
			pipe.Set(ctx, p.snapshotKey(ev.Symbol), data, defaultSnapshotTTL)
		case model.EventIntent, model.EventNotification:
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: p.ordersKey(),
				MaxLen: defaultStreamMaxLen,
				Approx: true,
				Values: map[string]interface{}{"kind": string(ev.Kind), "data": data},
			})
		case model.EventResult:
			pipe.Set(ctx, p.resultKey(), data, 0)
		}
		pipe.Publish(ctx, p.channel(ev.Kind), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline (%d events): %w", len(batch), err)
	}
	return nil
}

// Close hands over the buffered events, waits for the writer to finish
// every queued batch and closes the client. Later events are dropped.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	last := p.pending
	p.pending = nil
	p.mu.Unlock()

	// no other sender once closed is set
	if len(last) > 0 {
		p.batches <- last
	}
	close(p.batches)
	p.wg.Wait()

	if n := p.Dropped(); n > 0 {
		p.log.Warn().Int64("dropped", n).Msg("events lost")
	}
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
