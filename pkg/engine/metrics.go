package engine

import (
	"fmt"

	"github.com/DrSkyle/depotmap/pkg/telemetry"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	attributed metric.Int64Counter
	clustered  metric.Int64Counter
	dropped    metric.Int64Counter
	artifacts  metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := telemetry.Meter("engine")
	m := &metrics{}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.attributed, "depotmap.depots.attributed", "Depots placed by nearest-owner resolution", "{depot}"},
		{&m.clustered, "depotmap.depots.clustered", "Depots placed in synthetic groups", "{depot}"},
		{&m.dropped, "depotmap.depots.dropped", "Valid depots left without an owner", "{depot}"},
		{&m.artifacts, "depotmap.artifacts.written", "Scripts written to the sink", "{script}"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}
