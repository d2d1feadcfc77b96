package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/storage"
)

// Sink is one alert-delivery channel.
type Sink interface {
	// Name identifies the sink in logs and delivery outcomes.
	Name() string

	// Send delivers a single alert. Retry policy, if any, lives inside the
	// sink; a non-nil error means the sink reached a terminal failure.
	Send(ctx context.Context, a storage.AlertRecord) error
}

// ConsoleSink writes alerts to a local writer. It is always available and
// acts as the fallback when no other sink is configured.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a ConsoleSink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Send(_ context.Context, a storage.AlertRecord) error {
	fmt.Fprintf(s.out, "[ALERT] %s value=%.2f threshold=%.2f at %s\n",
		strings.ToUpper(string(a.Kind)), a.Value, a.Limit,
		a.ObservedAt.UTC().Format(time.RFC3339))
	return nil
}
