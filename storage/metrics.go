package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives telemetry from the content store and the sweeper.
type Observer interface {
	RecordPut(duration time.Duration, sizeBytes int64, err error)
	RecordGet(operation string, err error)
	RecordSweep(duration time.Duration, result SweepResult, stored int64)
}

type nopObserver struct{}

func (nopObserver) RecordPut(time.Duration, int64, error)         {}
func (nopObserver) RecordGet(string, error)                       {}
func (nopObserver) RecordSweep(time.Duration, SweepResult, int64) {}

// PrometheusObserver exports store metrics to Prometheus.
type PrometheusObserver struct {
	putDuration  prometheus.Histogram
	uploadBytes  prometheus.Counter
	operations   *prometheus.CounterVec
	sweepRemoved *prometheus.CounterVec
	sweepLatency prometheus.Histogram
	storedImages prometheus.Gauge
}

// NewPrometheusObserver registers the store metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "img2"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		putDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "put_duration_seconds",
			Help:      "Latency of storing one upload (file write + metadata insert).",
			Buckets:   prometheus.DefBuckets,
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of successfully stored uploads.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Store operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		sweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Expired files and records removed by the sweeper.",
		}, []string{"kind"}),
		sweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiration sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		storedImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_images",
			Help:      "Image records present after the last sweep.",
		}),
	}
	var err error
	if o.putDuration, err = register(reg, o.putDuration); err != nil {
		return nil, err
	}
	if o.uploadBytes, err = register(reg, o.uploadBytes); err != nil {
		return nil, err
	}
	if o.operations, err = register(reg, o.operations); err != nil {
		return nil, err
	}
	if o.sweepRemoved, err = register(reg, o.sweepRemoved); err != nil {
		return nil, err
	}
	if o.sweepLatency, err = register(reg, o.sweepLatency); err != nil {
		return nil, err
	}
	if o.storedImages, err = register(reg, o.storedImages); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered so that several stores can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register store metric: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) RecordPut(duration time.Duration, sizeBytes int64, err error) {
	o.putDuration.Observe(duration.Seconds())
	o.operations.WithLabelValues("put", outcome(err)).Inc()
	if err == nil {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordGet(operation string, err error) {
	o.operations.WithLabelValues(operation, outcome(err)).Inc()
}

func (o *PrometheusObserver) RecordSweep(duration time.Duration, result SweepResult, stored int64) {
	o.sweepLatency.Observe(duration.Seconds())
	o.sweepRemoved.WithLabelValues("file").Add(float64(result.FilesRemoved))
	o.sweepRemoved.WithLabelValues("record").Add(float64(result.RecordsRemoved))
	if result.Failures > 0 {
		o.operations.WithLabelValues("sweep", "error").Add(float64(result.Failures))
	}
	if stored >= 0 {
		o.storedImages.Set(float64(stored))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
