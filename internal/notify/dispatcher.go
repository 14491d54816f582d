package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/Marksio90/narrative-dispatch/internal/events"
)

// RetryConfig configures exponential backoff retry behavior for delivery.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages per-agent-type circuit breakers, so one flapping
// delivery channel does not burn the retry budget of every agent type.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new breaker registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Get returns the circuit breaker for the given agent type, creating it on
// first use.
func (r *BreakerRegistry) Get(agentType string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentType]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentType,
		MaxRequests: 3, // Test requests allowed in half-open state
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("notification breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Caller cancellation is not a channel failure.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[agentType] = cb
	return cb
}

// Dispatcher consumes task.assigned events from the bus and pushes
// notifications through the Notifier with backoff retry behind a
// per-agent-type circuit breaker. Delivery failures are logged and dropped:
// agents recover by polling NextTask.
type Dispatcher struct {
	notifier Notifier
	bus      *events.Bus
	breakers *BreakerRegistry
	retryCfg RetryConfig
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A zero RetryConfig gets defaults.
func NewDispatcher(notifier Notifier, bus *events.Bus, retryCfg RetryConfig) *Dispatcher {
	if retryCfg.InitialInterval <= 0 {
		retryCfg = DefaultRetryConfig()
	}
	return &Dispatcher{
		notifier: notifier,
		bus:      bus,
		breakers: NewBreakerRegistry(),
		retryCfg: retryCfg,
	}
}

// Run consumes assignment events until ctx is cancelled or the bus closes,
// then waits for in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) {
	ch := d.bus.Subscribe(events.TopicTask, 0)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case ev, ok := <-ch:
			if !ok {
				d.wg.Wait()
				return
			}
			assigned, isAssigned := ev.(events.TaskAssignedEvent)
			if !isAssigned {
				continue
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.deliver(ctx, Notification{
					TaskID:    assigned.ID,
					ProjectID: assigned.ProjectID,
					AgentID:   assigned.AgentID,
					AgentType: assigned.AgentType,
					Priority:  assigned.Priority,
				})
			}()
		}
	}
}

// deliver pushes one notification with exponential backoff and circuit
// breaker protection.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	cb := d.breakers.Get(n.AgentType)

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, d.notifier.Notify(ctx, n)
		})
		if err != nil {
			// An open breaker means the channel is down; retrying now is noise.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = d.retryCfg.InitialInterval
	expBackoff.MaxInterval = d.retryCfg.MaxInterval
	expBackoff.MaxElapsedTime = d.retryCfg.MaxElapsedTime
	expBackoff.Multiplier = d.retryCfg.Multiplier
	expBackoff.RandomizationFactor = d.retryCfg.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		log.Printf("WARNING: dropping notification for task %s to agent %s: %v", n.TaskID, n.AgentID, err)
	}
}
