package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

var ctx = context.Background()

func breach(kind metric.Kind, value, limit float64, observed time.Time) threshold.Breach {
	return threshold.Breach{Kind: kind, Value: value, Limit: limit, ObservedAt: observed}
}

func TestRecordAlert_InitialState(t *testing.T) {
	m := NewMemory()
	created := time.Date(2025, 10, 25, 12, 0, 1, 0, time.UTC)
	m.now = func() time.Time { return created }

	observed := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	rec, err := m.RecordAlert(ctx, breach(metric.CPU, 95, 90, observed))
	if err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if rec.ID == "" {
		t.Error("ID: expected a generated identity")
	}
	if rec.Delivery != DeliveryPending {
		t.Errorf("Delivery: got %q, want pending", rec.Delivery)
	}
	if rec.Value != 95 || rec.Limit != 90 {
		t.Errorf("record: got value=%v limit=%v, want 95/90", rec.Value, rec.Limit)
	}
	if !rec.ObservedAt.Equal(observed) || !rec.CreatedAt.Equal(created) {
		t.Errorf("times: got observed=%v created=%v", rec.ObservedAt, rec.CreatedAt)
	}
}

func TestUpdateDelivery_Forward(t *testing.T) {
	m := NewMemory()
	rec, _ := m.RecordAlert(ctx, breach(metric.CPU, 95, 90, time.Now()))

	for _, status := range []DeliveryStatus{DeliveryDelivering, DeliveryDelivered} {
		if err := m.UpdateDelivery(ctx, rec.ID, status); err != nil {
			t.Fatalf("UpdateDelivery(%s): %v", status, err)
		}
	}

	got, _ := m.RecentAlerts(ctx, 1)
	if got[0].Delivery != DeliveryDelivered {
		t.Errorf("Delivery: got %q, want delivered", got[0].Delivery)
	}
}

func TestUpdateDelivery_IdempotentTerminalRepeat(t *testing.T) {
	m := NewMemory()
	rec, _ := m.RecordAlert(ctx, breach(metric.CPU, 95, 90, time.Now()))

	if err := m.UpdateDelivery(ctx, rec.ID, DeliveryDelivered); err != nil {
		t.Fatalf("first terminal update: %v", err)
	}
	if err := m.UpdateDelivery(ctx, rec.ID, DeliveryDelivered); err != nil {
		t.Fatalf("repeated terminal update: %v", err)
	}

	got, _ := m.RecentAlerts(ctx, 1)
	if got[0].Delivery != DeliveryDelivered {
		t.Errorf("Delivery after repeat: got %q, want delivered", got[0].Delivery)
	}
}

func TestUpdateDelivery_RejectsBackward(t *testing.T) {
	m := NewMemory()
	rec, _ := m.RecordAlert(ctx, breach(metric.CPU, 95, 90, time.Now()))

	if err := m.UpdateDelivery(ctx, rec.ID, DeliveryFailed); err != nil {
		t.Fatalf("terminal update: %v", err)
	}
	if err := m.UpdateDelivery(ctx, rec.ID, DeliveryPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("terminal->pending: got %v, want ErrInvalidTransition", err)
	}
	if err := m.UpdateDelivery(ctx, rec.ID, DeliveryDelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed->delivered: got %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateDelivery_UnknownID(t *testing.T) {
	m := NewMemory()
	if err := m.UpdateDelivery(ctx, "missing", DeliveryDelivered); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestRecentAlerts_NewestFirst(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.RecordAlert(ctx, breach(metric.CPU, 95, 90, base.Add(time.Duration(i)*time.Minute))) //nolint:errcheck
	}

	got, err := m.RecentAlerts(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ObservedAt.After(got[i-1].ObservedAt) {
			t.Errorf("order: alerts[%d] newer than alerts[%d]", i, i-1)
		}
	}
	if !got[0].ObservedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("first: got %v, want newest", got[0].ObservedAt)
	}
}

func TestAlertsInRange(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		m.RecordAlert(ctx, breach(metric.Memory, 99, 75, base.Add(time.Duration(i)*time.Hour))) //nolint:errcheck
	}

	got, err := m.AlertsInRange(ctx, base.Add(2*time.Hour), base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("AlertsInRange: %v", err)
	}
	if len(got) != 4 { // hours 2,3,4,5 inclusive
		t.Fatalf("len: got %d, want 4", len(got))
	}
	if !got[0].ObservedAt.Equal(base.Add(5 * time.Hour)) {
		t.Errorf("first: got %v, want upper bound", got[0].ObservedAt)
	}
}

func TestSamples_RecentAndRange(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		err := m.RecordSample(ctx, metric.Sample{
			Kind: metric.CPU, Value: float64(i), ObservedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}

	recent, _ := m.RecentSamples(ctx, 2)
	if len(recent) != 2 || recent[0].Value != 3 {
		t.Errorf("RecentSamples: got %+v, want newest two", recent)
	}

	ranged, _ := m.SamplesInRange(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	if len(ranged) != 2 {
		t.Fatalf("SamplesInRange len: got %d, want 2", len(ranged))
	}
}

func TestSummary(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)

	m.RecordSample(ctx, metric.Sample{Kind: metric.CPU, Value: 10, ObservedAt: base})                    //nolint:errcheck
	m.RecordSample(ctx, metric.Sample{Kind: metric.CPU, Value: 20, ObservedAt: base.Add(time.Minute)})   //nolint:errcheck
	m.RecordSample(ctx, metric.Sample{Kind: metric.Memory, Value: 40, ObservedAt: base.Add(time.Minute)}) //nolint:errcheck

	m.RecordAlert(ctx, breach(metric.CPU, 95, 90, base))                  //nolint:errcheck
	m.RecordAlert(ctx, breach(metric.CPU, 96, 90, base.Add(time.Minute))) //nolint:errcheck
	m.RecordAlert(ctx, breach(metric.Memory, 99, 75, base.Add(time.Hour))) //nolint:errcheck

	sum, err := m.Summary(ctx, 2)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalAlerts != 3 {
		t.Errorf("TotalAlerts: got %d, want 3", sum.TotalAlerts)
	}
	if sum.Breakdown[metric.CPU] != 2 || sum.Breakdown[metric.Memory] != 1 {
		t.Errorf("Breakdown: got %+v", sum.Breakdown)
	}
	if len(sum.LastAlertTimes) != 2 {
		t.Errorf("LastAlertTimes: got %d entries, want 2", len(sum.LastAlertTimes))
	}
	if sum.AvgRecentSample[metric.CPU] != 15 {
		t.Errorf("cpu average: got %v, want 15", sum.AvgRecentSample[metric.CPU])
	}
	if sum.AvgRecentSample[metric.Memory] != 40 {
		t.Errorf("memory average: got %v, want 40", sum.AvgRecentSample[metric.Memory])
	}
}

func TestSampleRetention_Bounded(t *testing.T) {
	m := NewMemoryWithRetention(3, 0)
	for i := 0; i < 10; i++ {
		m.RecordSample(ctx, metric.Sample{Kind: metric.CPU, Value: float64(i), ObservedAt: time.Now()}) //nolint:errcheck
	}
	got, _ := m.RecentSamples(ctx, 0)
	if len(got) != 3 {
		t.Errorf("retained samples: got %d, want 3", len(got))
	}
	if got[0].Value != 9 {
		t.Errorf("newest retained: got %v, want 9", got[0].Value)
	}
}

func TestAlertRetention_KeepsIndexConsistent(t *testing.T) {
	m := NewMemoryWithRetention(0, 2)

	first, _ := m.RecordAlert(ctx, breach(metric.CPU, 95, 90, time.Now()))
	second, _ := m.RecordAlert(ctx, breach(metric.CPU, 96, 90, time.Now()))
	third, _ := m.RecordAlert(ctx, breach(metric.CPU, 97, 90, time.Now()))

	if err := m.UpdateDelivery(ctx, first.ID, DeliveryDelivered); !errors.Is(err, ErrNotFound) {
		t.Errorf("evicted alert: got %v, want ErrNotFound", err)
	}
	if err := m.UpdateDelivery(ctx, second.ID, DeliveryDelivered); err != nil {
		t.Errorf("retained alert %s: %v", second.ID, err)
	}
	if err := m.UpdateDelivery(ctx, third.ID, DeliveryDelivered); err != nil {
		t.Errorf("retained alert %s: %v", third.ID, err)
	}
}

func TestConcurrentRecordAndRead(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RecordAlert(ctx, breach(metric.CPU, 95, 90, time.Now())) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			m.RecentAlerts(ctx, 10) //nolint:errcheck
		}()
	}
	wg.Wait()

	got, _ := m.RecentAlerts(ctx, 0)
	if len(got) != 50 {
		t.Errorf("alert count: got %d, want 50", len(got))
	}
}
