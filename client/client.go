package client

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/config"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
	"github.com/c360/pulsekit/metric"
)

// Client is one session against a broker cluster. It owns the connection
// pool, the resource registry and the lifecycle of every producer, consumer
// and reader created through it. Close is terminal: a closed client fails
// all further creates without touching the network.
type Client struct {
	cfg       config.ClientConfig
	identity  string
	sessionID string

	logger          *slog.Logger
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	codec           broker.Codec

	selector *broker.AddressSelector
	pool     *broker.Pool
	registry *resourceRegistry

	// rootCtx is cancelled on Close so in-flight creates abort with
	// Disconnected even while blocked inside a connect attempt
	rootCtx context.Context
	cancel  context.CancelFunc

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewClient creates a client session for the given service URL
func NewClient(serviceURL string, opts ...Option) (*Client, error) {
	cfg := config.DefaultClientConfig()
	cfg.ServiceURL = serviceURL
	return NewClientFromConfig(cfg, opts...)
}

// NewClientFromConfig creates a client session from a prebuilt config, with
// options applied on top.
func NewClientFromConfig(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidConfiguration, err)
	}

	addrs, err := broker.ParseServiceURL(c.cfg.ServiceURL)
	if err != nil {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidConfiguration, err)
	}

	c.identity = identity(c.cfg.Description)
	c.sessionID = uuid.NewString()
	if c.metricsRegistry == nil {
		c.metricsRegistry = metric.NewMetricsRegistry()
	}
	c.metrics = c.metricsRegistry.CoreMetrics()
	c.logger = c.logger.With("session_id", c.sessionID)

	c.selector = broker.NewAddressSelector(addrs)
	c.pool = broker.NewPool(c.selector, broker.PoolConfig{
		ConnectTimeout: c.cfg.ConnectionTimeout,
		ClientVersion:  c.identity,
		ListenerName:   c.cfg.ListenerName,
		Codec:          c.codec,
		Logger:         c.logger,
		ConnectRetry:   c.cfg.ConnectRetry,
		Metrics:        c.metrics,
	})
	c.registry = newResourceRegistry(c.metrics, c.logger)

	c.rootCtx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.registry.run(c.rootCtx, c.cfg.SweepInterval)
	}()

	c.logger.Debug("client session created", "identity", c.identity, "addresses", len(addrs))
	return c, nil
}

// Identity returns the client version string reported to brokers
func (c *Client) Identity() string {
	return c.identity
}

// MetricsRegistry returns the client's metrics registry
func (c *Client) MetricsRegistry() *metric.MetricsRegistry {
	return c.metricsRegistry
}

// opCtx derives the context of one client operation: the caller's context
// plus the operation timeout, aborted early when the client closes.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	stop := context.AfterFunc(c.rootCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// CreateProducer creates a producer for topic, fanning out over partitions
// when the topic is partitioned. On failure the returned handle is non-nil
// but uninitialized: its operations report ProducerNotInitialized.
func (c *Client) CreateProducer(ctx context.Context, topic string) (*Producer, error) {
	core, err := c.createProducer(ctx, topic)
	if err != nil {
		return &Producer{}, err
	}
	return &Producer{core: core}, nil
}

// ProducerResult delivers the outcome of an asynchronous producer create
type ProducerResult struct {
	Producer *Producer
	Err      error
}

// CreateProducerAsync creates a producer without blocking the caller. The
// operation timeout and client lifetime still bound the attempt.
func (c *Client) CreateProducerAsync(topic string) <-chan ProducerResult {
	ch := make(chan ProducerResult, 1)
	go func() {
		p, err := c.CreateProducer(context.Background(), topic)
		ch <- ProducerResult{Producer: p, Err: err}
	}()
	return ch
}

func (c *Client) createProducer(ctx context.Context, topic string) (producerCore, error) {
	if c.closed.Load() {
		return nil, errors.OutcomeWithCause(errors.ResultAlreadyClosed, errors.ErrClientClosed)
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidTopicName, errors.ErrEmptyTopic)
	}

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	start := time.Now()
	core, err := c.buildProducer(opCtx, topic)
	c.observeCreate("producer", start, err)
	return core, err
}

func (c *Client) buildProducer(ctx context.Context, topic string) (producerCore, error) {
	name := "prod-" + shortID()

	partitions, err := c.pool.LookupPartitions(ctx, topic)
	if err != nil {
		return nil, err
	}

	if partitions == 0 {
		tp, err := newTopicProducer(ctx, c, topic, name)
		if err != nil {
			return nil, err
		}
		if err := c.registry.register(entryFor(kindProducer, producerKey(topic, name), tp, tp.closed)); err != nil {
			tp.Close()
			return nil, err
		}
		return tp, nil
	}

	pp, err := newPartitionedProducer(ctx, c, topic, name, int(partitions))
	if err != nil {
		return nil, err
	}
	var registered []string
	for _, child := range pp.children {
		key := producerKey(child.topic, name)
		if err := c.registry.register(entryFor(kindProducer, key, child, child.closed)); err != nil {
			for _, k := range registered {
				c.registry.unregister(k)
			}
			pp.Close()
			return nil, err
		}
		registered = append(registered, key)
	}
	return pp, nil
}

// Subscribe creates a consumer on topic under the named subscription,
// fanning out over partitions when the topic is partitioned. On failure the
// returned handle is non-nil but uninitialized: its operations report
// ConsumerNotInitialized.
func (c *Client) Subscribe(ctx context.Context, topic, subscription string) (*Consumer, error) {
	core, err := c.subscribe(ctx, topic, subscription)
	if err != nil {
		return &Consumer{}, err
	}
	return &Consumer{core: core}, nil
}

// ConsumerResult delivers the outcome of an asynchronous subscribe
type ConsumerResult struct {
	Consumer *Consumer
	Err      error
}

// SubscribeAsync subscribes without blocking the caller
func (c *Client) SubscribeAsync(topic, subscription string) <-chan ConsumerResult {
	ch := make(chan ConsumerResult, 1)
	go func() {
		cons, err := c.Subscribe(context.Background(), topic, subscription)
		ch <- ConsumerResult{Consumer: cons, Err: err}
	}()
	return ch
}

func (c *Client) subscribe(ctx context.Context, topic, subscription string) (consumerCore, error) {
	if c.closed.Load() {
		return nil, errors.OutcomeWithCause(errors.ResultAlreadyClosed, errors.ErrClientClosed)
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidTopicName, errors.ErrEmptyTopic)
	}
	if strings.TrimSpace(subscription) == "" {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidConfiguration, errors.ErrEmptySubscription)
	}

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	start := time.Now()
	core, err := c.buildConsumer(opCtx, topic, subscription)
	c.observeCreate("consumer", start, err)
	return core, err
}

func (c *Client) buildConsumer(ctx context.Context, topic, subscription string) (consumerCore, error) {
	partitions, err := c.pool.LookupPartitions(ctx, topic)
	if err != nil {
		return nil, err
	}

	if partitions == 0 {
		tc, err := newTopicConsumer(ctx, c, topic, subscription, nil, nil)
		if err != nil {
			return nil, err
		}
		if err := c.registry.register(entryFor(kindConsumer, consumerKey(topic, subscription), tc, tc.closed)); err != nil {
			tc.Close()
			return nil, err
		}
		return tc, nil
	}

	pc, err := newPartitionedConsumer(ctx, c, topic, subscription, int(partitions))
	if err != nil {
		return nil, err
	}
	var registered []string
	for _, child := range pc.children {
		key := consumerKey(child.topic, subscription)
		if err := c.registry.register(entryFor(kindConsumer, key, child, child.closed)); err != nil {
			for _, k := range registered {
				c.registry.unregister(k)
			}
			pc.Close()
			return nil, err
		}
		registered = append(registered, key)
	}
	return pc, nil
}

// CreateReader creates a reader on a non-partitioned topic positioned at
// startID. Readers count as consumers in the session registry. On failure
// the returned handle is non-nil but uninitialized.
func (c *Client) CreateReader(ctx context.Context, topic string, startID message.MessageID) (*Reader, error) {
	core, err := c.createReader(ctx, topic, startID)
	if err != nil {
		return &Reader{}, err
	}
	return &Reader{core: core}, nil
}

// ReaderResult delivers the outcome of an asynchronous reader create
type ReaderResult struct {
	Reader *Reader
	Err    error
}

// CreateReaderAsync creates a reader without blocking the caller
func (c *Client) CreateReaderAsync(topic string, startID message.MessageID) <-chan ReaderResult {
	ch := make(chan ReaderResult, 1)
	go func() {
		r, err := c.CreateReader(context.Background(), topic, startID)
		ch <- ReaderResult{Reader: r, Err: err}
	}()
	return ch
}

func (c *Client) createReader(ctx context.Context, topic string, startID message.MessageID) (consumerCore, error) {
	if c.closed.Load() {
		return nil, errors.OutcomeWithCause(errors.ResultAlreadyClosed, errors.ErrClientClosed)
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.OutcomeWithCause(errors.ResultInvalidTopicName, errors.ErrEmptyTopic)
	}

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	start := time.Now()
	core, err := c.buildReader(opCtx, topic, startID)
	c.observeCreate("reader", start, err)
	return core, err
}

func (c *Client) buildReader(ctx context.Context, topic string, startID message.MessageID) (consumerCore, error) {
	partitions, err := c.pool.LookupPartitions(ctx, topic)
	if err != nil {
		return nil, err
	}
	if partitions > 0 {
		// Readers position by message id, which is per-partition state
		return nil, errors.OutcomeWithCause(errors.ResultInvalidTopicName,
			errors.Wrap(errors.ErrInvalidConfig, "Client", "CreateReader", "reader on partitioned topic"))
	}

	subscription := "reader-" + shortID()
	tc, err := newTopicConsumer(ctx, c, topic, subscription, &startID, nil)
	if err != nil {
		return nil, err
	}
	if err := c.registry.register(entryFor(kindConsumer, consumerKey(topic, subscription), tc, tc.closed)); err != nil {
		tc.Close()
		return nil, err
	}
	return tc, nil
}

// NumProducers returns the number of live producer registrations. Each
// partition of a partitioned producer counts once.
func (c *Client) NumProducers() int {
	return c.registry.count(kindProducer)
}

// NumConsumers returns the number of live consumer and reader registrations
func (c *Client) NumConsumers() int {
	return c.registry.count(kindConsumer)
}

// ClientStats is a point-in-time snapshot of session state
type ClientStats struct {
	SessionID string
	Identity  string
	Producers int
	Consumers int
	Closed    bool
}

// Stats returns a snapshot of the session
func (c *Client) Stats() ClientStats {
	return ClientStats{
		SessionID: c.sessionID,
		Identity:  c.identity,
		Producers: c.NumProducers(),
		Consumers: c.NumConsumers(),
		Closed:    c.closed.Load(),
	}
}

// Close shuts the session down, closing every registered resource and
// connection. Pending operations complete with Disconnected; later creates
// fail with AlreadyClosed without touching the network. Close is terminal
// and idempotent in effect; a second call reports AlreadyClosed.
func (c *Client) Close() error {
	return c.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. Resources are closed concurrently;
// when ctx fires before they finish, Shutdown reports Timeout while the
// remaining teardown continues in the background.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.OutcomeWithCause(errors.ResultAlreadyClosed, errors.ErrClientClosed)
	}
	c.logger.Debug("client session closing")

	// Abort pending creates first so they observe Disconnected promptly
	c.cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	c.registry.forEach(func(kind resourceKind, key string, res closer) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := res.Close()
			if err == nil || errors.ResultOf(err) == errors.ResultAlreadyClosed {
				return
			}
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		c.registry.sweep()
		c.pool.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Outcome(errors.ResultTimeout)
	}

	c.wg.Wait()
	c.logger.Debug("client session closed")
	return firstErr
}

func (c *Client) observeCreate(kind string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.CreateTotal.WithLabelValues(kind, errors.ResultOf(err).String()).Inc()
	c.metrics.CreateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func producerKey(topic, name string) string {
	return "producer/" + topic + "/" + name
}

func consumerKey(topic, subscription string) string {
	return "consumer/" + topic + "/" + subscription
}

func shortID() string {
	return uuid.NewString()[:8]
}
