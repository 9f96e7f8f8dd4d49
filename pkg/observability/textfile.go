package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Textfile bridges OTel instruments into a private Prometheus registry and
// writes it in the node-exporter textfile collector format. Batch runs use it
// where there is nothing to scrape.
type Textfile struct {
	path     string
	registry *prometheus.Registry
	reader   *promexporter.Exporter
}

// NewTextfile creates the exporter registered on registry.
func NewTextfile(path string, registry *prometheus.Registry) (*Textfile, error) {
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &Textfile{path: path, registry: registry, reader: exporter}, nil
}

// Reader returns the metric reader to attach to a MeterProvider.
func (t *Textfile) Reader() sdkmetric.Reader {
	return t.reader
}

// Path returns the output file.
func (t *Textfile) Path() string {
	return t.path
}

// Write gathers the registry and atomically replaces the textfile.
func (t *Textfile) Write() error {
	err := prometheus.WriteToTextfile(t.path, t.registry)
	if err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
