package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/storage"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

// Source supplies the current value for a metric kind. Implementations read
// the local host or a remote exposition endpoint.
type Source interface {
	Read(ctx context.Context, kind metric.Kind) (float64, error)
}

// Dispatcher receives freshly recorded alerts for notification.
type Dispatcher interface {
	Dispatch(rec storage.AlertRecord)
}

// Sampler drives the collect → record → evaluate → dispatch cycle.
type Sampler struct {
	src        Source
	store      storage.Store
	thresholds *threshold.Store
	dispatch   Dispatcher
	interval   time.Duration
	subject    string

	now func() time.Time
}

// New returns a Sampler that ticks every interval. subject is the identity
// threshold overrides are resolved for; empty means global thresholds only.
func New(src Source, store storage.Store, th *threshold.Store, d Dispatcher, interval time.Duration, subject string) *Sampler {
	return &Sampler{
		src:        src,
		store:      store,
		thresholds: th,
		dispatch:   d,
		interval:   interval,
		subject:    subject,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, collecting one round of samples per interval until ctx is
// cancelled. The first round runs immediately rather than one interval in.
func (s *Sampler) Run(ctx context.Context) {
	slog.Info("sampler: started", "interval", s.interval, "subject", s.subject)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sampler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick collects one sample per kind. The threshold snapshot is taken once so
// every kind in the round sees the same rules. A failure on one kind is
// logged and does not stop the others.
func (s *Sampler) tick(ctx context.Context) {
	snap := s.thresholds.Snapshot()

	for _, kind := range metric.Kinds() {
		value, err := s.src.Read(ctx, kind)
		if err != nil {
			slog.Warn("sampler: read failed", "kind", kind, "err", err)
			continue
		}

		sample := metric.Sample{Kind: kind, Value: value, ObservedAt: s.now()}
		if err := s.store.RecordSample(ctx, sample); err != nil {
			// The sample is still evaluated: a full store must not
			// silence alerting.
			slog.Error("sampler: record sample failed", "kind", kind, "err", err)
		}

		breach, ok := threshold.Evaluate(snap, sample, s.subject)
		if !ok {
			continue
		}

		rec, err := s.store.RecordAlert(ctx, breach)
		if err != nil {
			slog.Error("sampler: record alert failed", "kind", kind, "err", err)
			continue
		}
		slog.Info("sampler: threshold breached",
			"kind", kind, "value", value, "limit", breach.Limit, "alert_id", rec.ID)
		s.dispatch.Dispatch(rec)
	}
}
