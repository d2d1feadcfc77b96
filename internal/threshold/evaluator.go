package threshold

import (
	"time"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

// Breach describes a sample that exceeded its resolved threshold.
type Breach struct {
	Kind       metric.Kind
	Value      float64
	Limit      float64
	Subject    string
	ObservedAt time.Time
}

// Evaluate tests sample against the thresholds in snap as seen by subject.
//
// A breach is reported iff a threshold resolves for the sample's kind and
// the observed value is strictly greater than the limit — equality is not a
// breach. Unconfigured kinds never alert (fail-open). Evaluate has no side
// effects; callers obtain snap once per evaluation so a concurrent replace
// cannot be observed mid-decision.
func Evaluate(snap *Ruleset, sample metric.Sample, subject string) (Breach, bool) {
	limit, ok := snap.Resolve(sample.Kind, subject)
	if !ok {
		return Breach{}, false
	}
	if sample.Value <= limit {
		return Breach{}, false
	}
	return Breach{
		Kind:       sample.Kind,
		Value:      sample.Value,
		Limit:      limit,
		Subject:    subject,
		ObservedAt: sample.ObservedAt,
	}, true
}
