package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   256,
		Workers:     2,
		MaxAttempts: 3,
		RetryDelay:  500 * time.Millisecond,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher is the production Emitter. Events are queued and fanned out to
// every sender by a fixed worker pool. A full queue drops the event.
type Dispatcher struct {
	cfg       DispatcherConfig
	senders   []Sender
	templates *TemplateEngine
	logger    zerolog.Logger

	queue chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, templates *TemplateEngine, logger zerolog.Logger, senders ...Sender) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if templates == nil {
		templates = NewTemplateEngine()
	}
	d := &Dispatcher{
		cfg:       cfg,
		senders:   senders,
		templates: templates,
		logger:    logger.With().Str("component", "notification").Logger(),
		queue:     make(chan Event, cfg.QueueSize),
		stop:      make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Emit enqueues evt without blocking. The caller's context is not used for
// delivery, so a finished request does not cancel its notifications.
func (d *Dispatcher) Emit(_ context.Context, evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("kind", string(evt.Kind)).Msg("dispatcher closed, event dropped")
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn().
			Str("kind", string(evt.Kind)).
			Str("appointment_id", evt.AppointmentID.String()).
			Msg("notification queue full, event dropped")
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt Event) {
	subject, body, err := d.templates.Render(evt)
	if err != nil {
		d.logger.Warn().Err(err).Msg("render notification")
	}
	msg := Message{Event: evt, Subject: subject, Body: body}

	for _, s := range d.senders {
		var sendErr error
		for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
			sendErr = s.Send(ctx, msg)
			cancel()
			if sendErr == nil {
				break
			}
			if attempt < d.cfg.MaxAttempts && !d.sleep(d.cfg.RetryDelay*time.Duration(attempt)) {
				break
			}
		}
		if sendErr != nil {
			d.logger.Error().Err(sendErr).
				Str("sender", s.Name()).
				Str("kind", string(evt.Kind)).
				Str("event_id", evt.ID.String()).
				Msg("notification delivery failed")
		}
	}
}

// sleep waits for delay unless the dispatcher is shutting down.
func (d *Dispatcher) sleep(delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.stop:
		return false
	}
}

// Close stops accepting events and waits for queued ones to drain, or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(d.stop)
		return ctx.Err()
	}
}
