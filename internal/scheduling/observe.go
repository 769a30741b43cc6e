package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
)

var tracer = otel.Tracer("doctor-slot-booking.internal.scheduling")

// observer wraps core operations in a span, a metric sample and a log line.
type observer struct {
	log     *zap.Logger
	metrics *metrics.BookingMetrics
}

func newObserver(log *zap.Logger, m *metrics.BookingMetrics) observer {
	if log == nil {
		log = zap.NewNop()
	}
	return observer{log: log, metrics: m}
}

func (o observer) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	kind := ErrorKind(err)
	o.metrics.ObserveOperation(op, kind, time.Since(start).Seconds())

	fields := make([]zap.Field, 0, len(attrs)+2)
	fields = append(fields, zap.String("operation", op))
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value.Emit()))
	}

	switch kind {
	case "ok":
		span.SetStatus(codes.Ok, "")
	case "internal":
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Error("operation failed", append(fields, zap.Error(err))...)
	default:
		span.SetAttributes(attribute.String("booking.rejected", kind))
		o.log.Debug("operation rejected", append(fields, zap.String("kind", kind))...)
	}
	return err
}

func slotAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("slot_id", id.String())
}

func appointmentAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("appointment_id", id.String())
}

func doctorAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("doctor_id", id.String())
}
