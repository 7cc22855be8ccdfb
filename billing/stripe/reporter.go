// Package stripe reports paid-tier RPC usage to Stripe's metered billing
// API, reconciling gateway dispatch counts against the upstream's own
// invoice for priority-2 providers.
package stripe

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rpcmux/gateway/pkg/gateway"
)

const (
	defaultMeterEventName = "rpc_usage"
	defaultBatchSize      = 50
	defaultFlushInterval  = 10 * time.Second
	defaultQueueSize      = 1000
)

// CustomerIDResolver maps a gateway provider name to the Stripe customer ID
// that should be billed for its usage.
type CustomerIDResolver func(provider string) (string, error)

// Config carries the construction-time options for Reporter.
type Config struct {
	APIKey             string
	MeterEventName     string // Stripe meter event name; defaults to "rpc_usage"
	CustomerIDResolver CustomerIDResolver
	BatchSize          int           // events per flush; defaults to 50
	FlushInterval      time.Duration // defaults to 10s
	QueueSize          int           // defaults to 1000
	Logger             gateway.Logger
}

// Reporter implements gateway.BillingReporter, batching events in memory and
// flushing them to Stripe's meter-events API on a worker goroutine.
type Reporter struct {
	client   *stripe.Client
	config   Config
	logger   gateway.Logger
	queue    chan gateway.BillingEvent
	shutdown chan struct{}
	wg       sync.WaitGroup

	// send is the seam tests substitute to avoid a real Stripe API call.
	send func(ctx context.Context, batch []gateway.BillingEvent) error
}

// NewReporter validates config, constructs a Stripe client, and starts the
// background batching worker.
func NewReporter(config Config) (*Reporter, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe: API key required")
	}
	if config.CustomerIDResolver == nil {
		return nil, errors.New("stripe: CustomerIDResolver required")
	}
	if config.MeterEventName == "" {
		config.MeterEventName = defaultMeterEventName
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaultFlushInterval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}

	logger := config.Logger
	if logger == nil {
		logger = gateway.NoopLogger{}
	}

	client := stripe.NewClient(apiKey)

	r := &Reporter{
		client:   client,
		config:   config,
		logger:   logger,
		queue:    make(chan gateway.BillingEvent, config.QueueSize),
		shutdown: make(chan struct{}),
	}
	r.send = r.sendToStripe

	r.wg.Add(1)
	go r.run()

	return r, nil
}

// Report enqueues event for the next flush. It never blocks: a full queue
// drops the event and logs a warning, per billing being observability, not a
// gate on the request path.
func (r *Reporter) Report(event gateway.BillingEvent) {
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("billing event queue full, dropping event",
			gateway.Field{Key: "provider", Value: event.Provider},
			gateway.Field{Key: "method", Value: event.Method})
	}
}

// Close stops the worker, flushing any buffered events first.
func (r *Reporter) Close() error {
	close(r.shutdown)
	r.wg.Wait()
	return nil
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]gateway.BillingEvent, 0, r.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.send(context.Background(), batch); err != nil {
			r.logger.Warn("failed to report billing batch", gateway.Field{Key: "error", Value: err.Error()}, gateway.Field{Key: "count", Value: len(batch)})
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-r.queue:
			batch = append(batch, event)
			if len(batch) >= r.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.shutdown:
			for {
				select {
				case event := <-r.queue:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// sendToStripe reports one meter event per billing event. Customer
// resolution failures and per-event API errors are logged and skipped; one
// bad event in a batch must not sink its siblings.
func (r *Reporter) sendToStripe(ctx context.Context, batch []gateway.BillingEvent) error {
	for _, event := range batch {
		customerID, err := r.config.CustomerIDResolver(event.Provider)
		if err != nil {
			r.logger.Warn("billing: customer id resolve failed",
				gateway.Field{Key: "provider", Value: event.Provider}, gateway.Field{Key: "error", Value: err.Error()})
			continue
		}

		params := &stripe.BillingMeterEventCreateParams{
			EventName: stripe.String(r.config.MeterEventName),
			Payload: map[string]string{
				"stripe_customer_id": customerID,
				"value":              strconv.Itoa(event.Units),
				"provider":           event.Provider,
				"method":             event.Method,
			},
			Timestamp: stripe.Int64(event.Timestamp.Unix()),
		}

		if _, err := r.client.V1Billing.MeterEvents.Create(ctx, params); err != nil {
			r.logger.Warn("billing: failed to report meter event",
				gateway.Field{Key: "provider", Value: event.Provider}, gateway.Field{Key: "error", Value: err.Error()})
		}
	}
	return nil
}

var _ gateway.BillingReporter = (*Reporter)(nil)
