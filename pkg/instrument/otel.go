package instrument

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lattice-dev/lattice/pkg/cell"
)

// Default tracer name for lattice graphs.
const defaultTracerName = "lattice"

// TraceConfig configures the OpenTelemetry instrumentation.
type TraceConfig struct {
	// TracerName is the name of the tracer (default: "lattice").
	TracerName string

	// MinFanout suppresses trigger spans whose subscriber snapshot is
	// smaller than this. Effect-run spans are always recorded. Zero traces
	// every trigger, including ones with no subscribers at all.
	MinFanout int

	// AttributeExtractor adds custom attributes to every span.
	AttributeExtractor func() []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// TraceOption configures the OpenTelemetry instrumentation.
type TraceOption func(*TraceConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TraceOption {
	return func(c *TraceConfig) {
		c.TracerName = name
	}
}

// WithMinFanout sets the minimum trigger fanout worth a span.
func WithMinFanout(n int) TraceOption {
	return func(c *TraceConfig) {
		c.MinFanout = n
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func() []attribute.KeyValue) TraceOption {
	return func(c *TraceConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultTraceConfig returns the default OpenTelemetry configuration.
func defaultTraceConfig() TraceConfig {
	return TraceConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry builds graph hooks that record spans for reactive activity:
//
//   - lattice.effect.run: one span per effect body execution, reconstructed
//     from the hook's measured duration (the span covers the time the body
//     actually ran, ending at the hook invocation)
//   - lattice.trigger: a zero-length marker span per trigger, carrying the
//     target, key, and fanout; gate the volume with WithMinFanout
//
// Spans are roots: the reactive core has no context.Context flowing through
// a cascade to parent them under. Correlate with the effect and target IDs
// carried as attributes.
//
// The tracer comes from the global OpenTelemetry tracer provider. Configure
// it in main() before building the graph:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	)
//	otel.SetTracerProvider(tp)
//
//	g := cell.NewGraph(cell.WithHooks(instrument.OpenTelemetry(
//	    instrument.WithTracerName("my-app"),
//	    instrument.WithMinFanout(2),
//	)))
func OpenTelemetry(opts ...TraceOption) cell.Hooks {
	config := defaultTraceConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	return cell.Hooks{
		OnEffectRun: func(effectID uint64, d time.Duration) {
			end := time.Now()
			attrs := []attribute.KeyValue{
				attribute.Int64("lattice.effect_id", int64(effectID)),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor()...)
			}

			_, span := config.tracer.Start(
				context.Background(),
				"lattice.effect.run",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithTimestamp(end.Add(-d)),
				trace.WithAttributes(attrs...),
			)
			span.End(trace.WithTimestamp(end))
		},

		OnTrigger: func(targetID uint64, key string, fanout int) {
			if fanout < config.MinFanout {
				return
			}

			now := time.Now()
			attrs := []attribute.KeyValue{
				attribute.Int64("lattice.target_id", int64(targetID)),
				attribute.String("lattice.key", key),
				attribute.Int("lattice.fanout", fanout),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor()...)
			}

			_, span := config.tracer.Start(
				context.Background(),
				"lattice.trigger",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithTimestamp(now),
				trace.WithAttributes(attrs...),
			)
			span.End(trace.WithTimestamp(now))
		},
	}
}
