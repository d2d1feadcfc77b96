package api

import (
	"time"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ThresholdEntry is one configured threshold as returned by the API.
type ThresholdEntry struct {
	Kind    metric.Kind `json:"kind"`
	Limit   float64     `json:"limit"`
	Subject string      `json:"subject,omitempty"`
}

// ThresholdsResponse is the body of GET /api/v1/thresholds: the limit in
// effect per kind for the requested subject.
type ThresholdsResponse struct {
	Subject   string                  `json:"subject,omitempty"`
	Effective map[metric.Kind]float64 `json:"effective"`
}

// SetThresholdRequest is the body of PUT /api/v1/thresholds.
type SetThresholdRequest struct {
	Kind    string  `json:"kind"`
	Limit   float64 `json:"limit"`
	Subject string  `json:"subject,omitempty"`
}

// SampleResponse is one metric sample as returned by the API.
type SampleResponse struct {
	Kind       metric.Kind `json:"type"`
	Value      float64     `json:"value"`
	ObservedAt time.Time   `json:"ts"`
}

func toSampleResponse(s metric.Sample) SampleResponse {
	return SampleResponse{Kind: s.Kind, Value: s.Value, ObservedAt: s.ObservedAt}
}
