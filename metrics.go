package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported by this package. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	repositoryOps      *prometheus.CounterVec
	repositoryDuration *prometheus.HistogramVec
	transitions        *prometheus.CounterVec
	binaryRequests     *prometheus.CounterVec
	binaryBytes        prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		repositoryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirauth_repository_operations_total",
				Help: "Repository operations by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		repositoryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhirauth_repository_operation_duration_seconds",
				Help:    "Repository operation latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirauth_login_transitions_total",
				Help: "Login lifecycle transitions by transition and outcome.",
			},
			[]string{"transition", "outcome"},
		),
		binaryRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirauth_binary_requests_total",
				Help: "Binary retrievals by outcome.",
			},
			[]string{"outcome"},
		),
		binaryBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fhirauth_binary_bytes_total",
			Help: "Bytes streamed to binary retrieval clients.",
		}),
	}

	reg.MustRegister(
		m.repositoryOps,
		m.repositoryDuration,
		m.transitions,
		m.binaryRequests,
		m.binaryBytes,
	)
	return m
}

func (m *Metrics) observeRepository(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.repositoryOps.WithLabelValues(op, string(OutcomeKindOf(err))).Inc()
	m.repositoryDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeTransition(transition string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, string(OutcomeKindOf(err))).Inc()
}

func (m *Metrics) observeBinary(written int64, err error) {
	if m == nil {
		return
	}
	m.binaryRequests.WithLabelValues(string(OutcomeKindOf(err))).Inc()
	if written > 0 {
		m.binaryBytes.Add(float64(written))
	}
}

type instrumentedRepository struct {
	next    ResourceRepository
	metrics *Metrics
}

// NewInstrumentedRepository decorates next with operation counters.
func NewInstrumentedRepository(next ResourceRepository, metrics *Metrics) ResourceRepository {
	return &instrumentedRepository{next: next, metrics: metrics}
}

func (r *instrumentedRepository) CreateResource(ctx context.Context, resource Resource) (out Resource, err error) {
	defer func(started time.Time) { r.metrics.observeRepository("create", started, err) }(time.Now())
	return r.next.CreateResource(ctx, resource)
}

func (r *instrumentedRepository) ReadResource(ctx context.Context, resourceType, id string) (out Resource, err error) {
	defer func(started time.Time) { r.metrics.observeRepository("read", started, err) }(time.Now())
	return r.next.ReadResource(ctx, resourceType, id)
}

func (r *instrumentedRepository) ReadVersion(ctx context.Context, resourceType, id, versionID string) (out Resource, err error) {
	defer func(started time.Time) { r.metrics.observeRepository("vread", started, err) }(time.Now())
	return r.next.ReadVersion(ctx, resourceType, id, versionID)
}

// ReadReference resolves through the decorator so the read is counted once.
func (r *instrumentedRepository) ReadReference(ctx context.Context, ref *Reference) (Resource, error) {
	return readReference(ctx, r, ref)
}

func (r *instrumentedRepository) UpdateResource(ctx context.Context, resource Resource) (out Resource, err error) {
	defer func(started time.Time) { r.metrics.observeRepository("update", started, err) }(time.Now())
	return r.next.UpdateResource(ctx, resource)
}

func (r *instrumentedRepository) DeleteResource(ctx context.Context, resourceType, id string) (err error) {
	defer func(started time.Time) { r.metrics.observeRepository("delete", started, err) }(time.Now())
	return r.next.DeleteResource(ctx, resourceType, id)
}

func (r *instrumentedRepository) Search(ctx context.Context, resourceType string, param SearchParam) (out []Resource, err error) {
	defer func(started time.Time) { r.metrics.observeRepository("search", started, err) }(time.Now())
	return r.next.Search(ctx, resourceType, param)
}
