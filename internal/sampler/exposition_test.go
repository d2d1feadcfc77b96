package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

// nodeMetrics is a realistic subset of a node exporter's /metrics output.
const nodeMetrics = `
# HELP node_cpu_utilization_percent Current CPU utilization.
# TYPE node_cpu_utilization_percent gauge
node_cpu_utilization_percent 62.5

# HELP node_memory_used_percent Current memory utilization.
# TYPE node_memory_used_percent gauge
node_memory_used_percent 48.25
`

func expositionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExpositionSource_Read(t *testing.T) {
	srv := expositionServer(t, nodeMetrics)

	src := NewExpositionSource(srv.URL, map[metric.Kind]string{
		metric.CPU:    "node_cpu_utilization_percent",
		metric.Memory: "node_memory_used_percent",
	})

	got, err := src.Read(context.Background(), metric.CPU)
	if err != nil {
		t.Fatalf("Read(cpu): %v", err)
	}
	if got != 62.5 {
		t.Errorf("Read(cpu) = %v, want 62.5", got)
	}

	got, err = src.Read(context.Background(), metric.Memory)
	if err != nil {
		t.Fatalf("Read(memory): %v", err)
	}
	if got != 48.25 {
		t.Errorf("Read(memory) = %v, want 48.25", got)
	}
}

func TestExpositionSource_SumsSeries(t *testing.T) {
	srv := expositionServer(t, `
# TYPE proc_cpu_percent gauge
proc_cpu_percent{proc="a"} 20
proc_cpu_percent{proc="b"} 15
`)

	src := NewExpositionSource(srv.URL, map[metric.Kind]string{
		metric.CPU: "proc_cpu_percent",
	})

	got, err := src.Read(context.Background(), metric.CPU)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != 35 {
		t.Errorf("Read = %v, want summed 35", got)
	}
}

func TestExpositionSource_Errors(t *testing.T) {
	srv := expositionServer(t, nodeMetrics)

	t.Run("unmapped kind", func(t *testing.T) {
		src := NewExpositionSource(srv.URL, map[metric.Kind]string{})
		if _, err := src.Read(context.Background(), metric.CPU); err == nil {
			t.Error("expected error for unmapped kind")
		}
	})

	t.Run("absent family", func(t *testing.T) {
		src := NewExpositionSource(srv.URL, map[metric.Kind]string{
			metric.CPU: "no_such_family",
		})
		if _, err := src.Read(context.Background(), metric.CPU); err == nil {
			t.Error("expected error for absent family")
		}
	})

	t.Run("http error", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer bad.Close()

		src := NewExpositionSource(bad.URL, map[metric.Kind]string{
			metric.CPU: "node_cpu_utilization_percent",
		})
		if _, err := src.Read(context.Background(), metric.CPU); err == nil {
			t.Error("expected error for 500 response")
		}
	})
}
