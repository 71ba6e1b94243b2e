// Package prom exposes agent events as Prometheus metrics.
package prom

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/edgemetrics/internal/app"
	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

const namespace = "edgemetrics"

// Metrics implements app.Emitter.
type Metrics struct {
	publishes     *prometheus.CounterVec
	lastValue     *prometheus.GaugeVec
	skipped       *prometheus.CounterVec
	otaEvents     *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	deviceState   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Datapoint publish attempts by interface, endpoint and result.",
		}, []string{"interface", "endpoint", "result"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_published_value",
			Help:      "Last successfully published value per interface and endpoint.",
		}, []string{"interface", "endpoint"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Sampler ticks skipped without publishing, by reason.",
		}, []string{"reason"}),
		otaEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ota_events_total",
			Help:      "OTA lifecycle events handled by the relay, by kind.",
		}, []string{"kind"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reboot_confirmations_total",
			Help:      "Reboot confirmations published by the relay, by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_state_transitions_total",
			Help:      "Device lifecycle transitions by target state.",
		}, []string{"state"}),
		deviceState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_state",
			Help:      "Current device lifecycle state (0 created, 1 started, 2 polling, 3 stopping, 4 destroyed, 5 error).",
		}),
	}

	reg.MustRegister(m.publishes, m.lastValue, m.skipped, m.otaEvents,
		m.confirmations, m.transitions, m.deviceState)
	return m
}

func (m *Metrics) OnStateChange(previous, current app.State, reason string) {
	m.transitions.WithLabelValues(current.String()).Inc()
	m.deviceState.Set(float64(current))
}

func (m *Metrics) OnPublishSuccess(iface, endpoint string, value float64) {
	m.publishes.WithLabelValues(iface, endpoint, "success").Inc()
	m.lastValue.WithLabelValues(iface, endpoint).Set(value)
}

func (m *Metrics) OnPublishError(iface, endpoint string, err error) {
	m.publishes.WithLabelValues(iface, endpoint, "error").Inc()
}

func (m *Metrics) OnTickSkipped(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnOTAEvent(kind domain.OTAKind) {
	m.otaEvents.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) OnRebootConfirmed(id string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.confirmations.WithLabelValues(result).Inc()
}

var _ app.Emitter = (*Metrics)(nil)

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger ports.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics server listening", ports.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
