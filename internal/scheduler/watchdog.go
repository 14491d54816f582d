package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/Marksio90/narrative-dispatch/internal/events"
)

// Watchdog periodically scans in-progress tasks whose advisory deadline has
// passed and publishes overdue events for operator action. Deadlines are
// never enforced: the watchdog observes and reports, it does not fail tasks.
type Watchdog struct {
	store    Store
	bus      *events.Bus
	interval time.Duration
}

// NewWatchdog creates a watchdog. interval defaults to 30s when non-positive.
func NewWatchdog(store Store, bus *events.Bus, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watchdog{store: store, bus: bus, interval: interval}
}

// Run blocks until ctx is cancelled, scanning once per interval.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) {
	tasks, err := w.store.ListTasks(ctx, "", TaskFilter{Statuses: []TaskStatus{TaskInProgress}})
	if err != nil {
		log.Printf("WARNING: watchdog scan failed: %v", err)
		return
	}
	now := time.Now()
	for _, t := range tasks {
		if !t.Overdue(now) {
			continue
		}
		w.bus.Publish(events.TopicTask, events.TaskOverdueEvent{
			ID:        t.ID,
			AgentID:   t.AssignedAgentID,
			Deadline:  *t.Deadline,
			Timestamp: now,
		})
	}
}
