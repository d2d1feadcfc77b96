package metric

import (
	"fmt"
	"time"
)

// Kind is an enumerated category of a sampled quantity.
type Kind string

const (
	// CPU is host CPU utilization in percent.
	CPU Kind = "cpu"

	// Memory is host virtual-memory utilization in percent.
	Memory Kind = "memory"
)

// Kinds returns all supported metric kinds in sampling order.
func Kinds() []Kind {
	return []Kind{CPU, Memory}
}

// ParseKind converts a string to a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case CPU, Memory:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown metric kind %q", s)
}

// Sample is one observation of a metric kind. Samples are immutable once
// created; exactly one exists per collector tick per kind.
type Sample struct {
	Kind       Kind      `json:"type"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"ts"`
}
