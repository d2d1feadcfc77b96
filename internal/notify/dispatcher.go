package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pulsewatch/pulsewatch/internal/storage"
)

// DeliveryMarker records delivery-status transitions for alert records.
// *storage.Memory and *storage.Postgres both satisfy it.
type DeliveryMarker interface {
	UpdateDelivery(ctx context.Context, id string, status storage.DeliveryStatus) error
}

// outcomeSet accumulates per-sink terminal outcomes for one alert, one slot
// per configured sink. The overall terminal status is a pure function of
// the completed set.
type outcomeSet struct {
	mu        sync.Mutex
	delivered int
	failed    int
}

func (o *outcomeSet) record(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.delivered++
	} else {
		o.failed++
	}
}

// terminal computes the alert's overall status once every sink has reported.
// Delivered when at least one sink delivered; failed only when all failed.
func (o *outcomeSet) terminal() storage.DeliveryStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered > 0 {
		return storage.DeliveryDelivered
	}
	return storage.DeliveryFailed
}

// Dispatcher fans one alert out to every configured sink without blocking
// the caller. Sinks run in independent goroutines: a slow or failing sink
// never delays another sink or the sampling loop. The dispatcher supervises
// all in-flight deliveries so shutdown can cancel retry waits and drain.
type Dispatcher struct {
	sinks  []Sink
	marker DeliveryMarker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher delivering to sinks. Delivery outcomes
// are recorded through marker.
func NewDispatcher(marker DeliveryMarker, sinks ...Sink) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sinks:  sinks,
		marker: marker,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch hands an alert record to every sink and returns immediately.
// Delivery happens out-of-band; the record's status transitions to
// delivering now and to a terminal status once every sink has a terminal
// outcome. With zero sinks configured the record is terminal immediately.
func (d *Dispatcher) Dispatch(a storage.AlertRecord) {
	if len(d.sinks) == 0 {
		// No delivery work to do: terminal right away.
		d.mark(a.ID, storage.DeliveryDelivered)
		return
	}

	d.mark(a.ID, storage.DeliveryDelivering)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		set := &outcomeSet{}
		var inflight sync.WaitGroup
		for _, s := range d.sinks {
			inflight.Add(1)
			go func(s Sink) {
				defer inflight.Done()
				err := s.Send(d.ctx, a)
				set.record(err == nil)
				if err != nil {
					slog.Warn("notify: sink delivery failed",
						"sink", s.Name(), "alert", a.ID, "err", err)
				} else {
					slog.Debug("notify: sink delivered",
						"sink", s.Name(), "alert", a.ID)
				}
			}(s)
		}
		inflight.Wait()
		d.mark(a.ID, set.terminal())
	}()
}

// Close cancels in-flight retry waits and blocks until every delivery
// goroutine has finished. No new attempts are scheduled after Close begins.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// mark transitions the record's delivery status. A repeated terminal status
// is an idempotent no-op at the store; anything else unexpected is logged,
// never raised into the pipeline.
func (d *Dispatcher) mark(id string, status storage.DeliveryStatus) {
	if err := d.marker.UpdateDelivery(context.Background(), id, status); err != nil {
		slog.Error("notify: delivery-status update failed",
			"alert", id, "status", status, "err", err)
	}
}
