package sampler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

const defaultFetchTimeout = 10 * time.Second

// ExpositionSource reads metric values from a Prometheus text exposition
// endpoint, e.g. a node exporter. Each metric kind maps to one metric
// family; the values of all series in the family are summed.
type ExpositionSource struct {
	endpoint string
	families map[metric.Kind]string
	client   *http.Client
}

// NewExpositionSource returns a Source that fetches endpoint on every read.
// families maps each kind to the family name that supplies it.
func NewExpositionSource(endpoint string, families map[metric.Kind]string) *ExpositionSource {
	return &ExpositionSource{
		endpoint: endpoint,
		families: families,
		client:   &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Read fetches the exposition page and returns the summed value of the
// family mapped to kind.
func (e *ExpositionSource) Read(ctx context.Context, kind metric.Kind) (float64, error) {
	family, ok := e.families[kind]
	if !ok {
		return 0, fmt.Errorf("exposition: no family mapped for kind %q", kind)
	}

	mfs, err := e.fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("exposition: %w", err)
	}

	mf, ok := mfs[family]
	if !ok {
		return 0, fmt.Errorf("exposition: family %q absent from %s", family, e.endpoint)
	}
	return sumFamily(mf), nil
}

func (e *ExpositionSource) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition from r. A partial
// result with a non-fatal parse warning is still returned successfully.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a family.
func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
