package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

const (
	defaultMaxSamples = 10000
	defaultMaxAlerts  = 2000
)

// Memory is the in-memory Store. Samples and alerts are append-mostly logs
// trimmed to a bounded length; the only mutable field is an alert's delivery
// status.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	samples    []metric.Sample
	alerts     []AlertRecord
	alertIndex map[string]int // alert ID -> position in alerts
	maxSamples int
	maxAlerts  int
	now        func() time.Time // injectable for deterministic tests
}

// NewMemory creates an empty in-memory store with default retention bounds.
func NewMemory() *Memory {
	return NewMemoryWithRetention(defaultMaxSamples, defaultMaxAlerts)
}

// NewMemoryWithRetention creates an in-memory store that keeps at most
// maxSamples samples and maxAlerts alerts. Non-positive bounds fall back to
// the defaults.
func NewMemoryWithRetention(maxSamples, maxAlerts int) *Memory {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	if maxAlerts <= 0 {
		maxAlerts = defaultMaxAlerts
	}
	return &Memory{
		alertIndex: make(map[string]int),
		maxSamples: maxSamples,
		maxAlerts:  maxAlerts,
		now:        time.Now,
	}
}

func (m *Memory) RecordSample(_ context.Context, s metric.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[len(m.samples)-m.maxSamples:]
	}
	return nil
}

func (m *Memory) RecentSamples(_ context.Context, n int) ([]metric.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return recentSamples(m.samples, n), nil
}

func (m *Memory) SamplesInRange(_ context.Context, from, to time.Time) ([]metric.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]metric.Sample, 0)
	for i := len(m.samples) - 1; i >= 0; i-- {
		s := m.samples[i]
		if s.ObservedAt.Before(from) || s.ObservedAt.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) RecordAlert(_ context.Context, b threshold.Breach) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := AlertRecord{
		ID:         uuid.NewString(),
		Subject:    b.Subject,
		Kind:       b.Kind,
		Value:      b.Value,
		Limit:      b.Limit,
		ObservedAt: b.ObservedAt,
		CreatedAt:  m.now().UTC(),
		Delivery:   DeliveryPending,
	}
	m.alerts = append(m.alerts, rec)
	if len(m.alerts) > m.maxAlerts {
		drop := len(m.alerts) - m.maxAlerts
		m.alerts = m.alerts[drop:]
		for id, i := range m.alertIndex {
			if i < drop {
				delete(m.alertIndex, id)
			} else {
				m.alertIndex[id] = i - drop
			}
		}
	}
	m.alertIndex[rec.ID] = len(m.alerts) - 1
	return rec, nil
}

func (m *Memory) UpdateDelivery(_ context.Context, id string, status DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.alertIndex[id]
	if !ok {
		return ErrNotFound
	}
	current := m.alerts[i].Delivery
	if status == current {
		return nil // idempotent repeat
	}
	if !validTransition(current, status) {
		return ErrInvalidTransition
	}
	m.alerts[i].Delivery = status
	return nil
}

func (m *Memory) RecentAlerts(_ context.Context, n int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return recentAlerts(m.alerts, n), nil
}

func (m *Memory) AlertsInRange(_ context.Context, from, to time.Time) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AlertRecord, 0)
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if a.ObservedAt.Before(from) || a.ObservedAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) Summary(_ context.Context, n int) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := Summary{
		TotalAlerts:     len(m.alerts),
		Breakdown:       make(map[metric.Kind]int),
		LastAlertTimes:  make([]time.Time, 0, n),
		AvgRecentSample: make(map[metric.Kind]float64),
	}
	for _, a := range m.alerts {
		sum.Breakdown[a.Kind]++
	}
	for _, a := range recentAlerts(m.alerts, n) {
		sum.LastAlertTimes = append(sum.LastAlertTimes, a.ObservedAt)
	}

	totals := make(map[metric.Kind]float64)
	counts := make(map[metric.Kind]int)
	for i := len(m.samples) - 1; i >= 0; i-- {
		s := m.samples[i]
		if counts[s.Kind] >= summaryWindow {
			continue
		}
		totals[s.Kind] += s.Value
		counts[s.Kind]++
	}
	for kind, count := range counts {
		sum.AvgRecentSample[kind] = totals[kind] / float64(count)
	}
	return sum, nil
}

func (m *Memory) Close() {}

// recentSamples returns up to n entries from the tail of a log, newest first.
func recentSamples(log []metric.Sample, n int) []metric.Sample {
	if n <= 0 || n > len(log) {
		n = len(log)
	}
	out := make([]metric.Sample, 0, n)
	for i := len(log) - 1; i >= len(log)-n; i-- {
		out = append(out, log[i])
	}
	return out
}

func recentAlerts(log []AlertRecord, n int) []AlertRecord {
	if n <= 0 || n > len(log) {
		n = len(log)
	}
	out := make([]AlertRecord, 0, n)
	for i := len(log) - 1; i >= len(log)-n; i-- {
		out = append(out, log[i])
	}
	return out
}
