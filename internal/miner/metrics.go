package miner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var minerMeter = otel.Meter("voxelminer.ai/miner")

type metrics struct {
	mined     metric.Int64Counter
	digFails  metric.Int64Counter
	placed    metric.Int64Counter
	deposited metric.Int64Counter
	abandoned metric.Int64Counter
}

// newMetrics registers the engine counters on the global meter provider. Until a
// provider is installed they are no-ops.
func newMetrics() *metrics {
	return &metrics{
		mined:     counter("miner.blocks.mined", "Blocks broken and verified clear"),
		digFails:  counter("miner.dig.failures", "Dig attempts that did not clear the target"),
		placed:    counter("miner.blocks.placed", "Blocks placed to bridge or cover hazards"),
		deposited: counter("miner.items.deposited", "Items transferred into containers"),
		abandoned: counter("miner.cells.abandoned", "Planned cells given up after the retry budget"),
	}
}

func counter(name, desc string) metric.Int64Counter {
	c, err := minerMeter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter("").Int64Counter(name)
	}
	return c
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, n int, mode Mode) {
	if n <= 0 {
		return
	}
	// Record even after cancellation; the work already happened.
	c.Add(context.WithoutCancel(ctx), int64(n), metric.WithAttributes(attribute.String("mode", string(mode))))
}
