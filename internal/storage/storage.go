package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

// DeliveryStatus is the notification state of an alert record.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryPending:
		return 0
	case DeliveryDelivering:
		return 1
	case DeliveryDelivered, DeliveryFailed:
		return 2
	}
	return -1
}

// ErrNotFound is returned when an alert record does not exist.
var ErrNotFound = errors.New("storage: alert not found")

// ErrInvalidTransition is returned when a delivery-status update would move
// the status backward or replace one terminal status with another.
var ErrInvalidTransition = errors.New("storage: invalid delivery-status transition")

// validTransition reports whether moving from to next is allowed. Repeating
// the current status (terminal included) is an idempotent no-op handled by
// the caller.
func validTransition(from, next DeliveryStatus) bool {
	return next.rank() > from.rank()
}

// AlertRecord is one persisted threshold breach. Every field except Delivery
// is immutable after creation.
type AlertRecord struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject,omitempty"`
	Kind       metric.Kind    `json:"type"`
	Value      float64        `json:"value"`
	Limit      float64        `json:"threshold"`
	ObservedAt time.Time      `json:"ts"`
	CreatedAt  time.Time      `json:"generated_at"`
	Delivery   DeliveryStatus `json:"delivery_status"`
}

// Summary aggregates alert and sample history for the summary endpoint.
type Summary struct {
	TotalAlerts     int                     `json:"total_alerts"`
	Breakdown       map[metric.Kind]int     `json:"breakdown"`
	LastAlertTimes  []time.Time             `json:"last_alert_timestamps"`
	AvgRecentSample map[metric.Kind]float64 `json:"avg_recent"`
}

// summaryWindow is how many recent samples per kind feed the averages.
const summaryWindow = 10

// Store is the persistence surface consumed by the sampling pipeline and the
// collaborator-facing API.
type Store interface {
	// RecordSample appends one metric sample.
	RecordSample(ctx context.Context, s metric.Sample) error

	// RecentSamples returns up to n samples, observation time descending.
	RecentSamples(ctx context.Context, n int) ([]metric.Sample, error)

	// SamplesInRange returns samples observed in [from, to], observation
	// time descending.
	SamplesInRange(ctx context.Context, from, to time.Time) ([]metric.Sample, error)

	// RecordAlert creates and persists a new alert record for b with
	// delivery status pending, returning the record before any
	// notification is attempted.
	RecordAlert(ctx context.Context, b threshold.Breach) (AlertRecord, error)

	// UpdateDelivery transitions the delivery status of the alert with the
	// given id. Repeating the record's current status is a no-op; moving a
	// terminal status backward (or sideways to the other terminal status)
	// returns ErrInvalidTransition.
	UpdateDelivery(ctx context.Context, id string, status DeliveryStatus) error

	// RecentAlerts returns up to n alert records, observation time
	// descending.
	RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error)

	// AlertsInRange returns alert records observed in [from, to],
	// observation time descending.
	AlertsInRange(ctx context.Context, from, to time.Time) ([]AlertRecord, error)

	// Summary aggregates totals, a per-kind breakdown, the last n alert
	// timestamps, and recent sample averages.
	Summary(ctx context.Context, n int) (Summary, error)

	// Close releases any underlying resources.
	Close()
}
