// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package orchestrator

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector exports orchestrator activity as Prometheus
// metrics. All collectors are registered on the registerer passed to the
// constructor, so callers control exposure.
type PrometheusMetricsCollector struct {
	sagasStarted  *prometheus.CounterVec
	sagasFinished *prometheus.CounterVec
	sagaDuration  *prometheus.HistogramVec

	stepsDispatched         *prometheus.CounterVec
	stepRetries             *prometheus.CounterVec
	compensationsDispatched *prometheus.CounterVec
}

// NewPrometheusMetricsCollector creates a collector and registers its metrics
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// process-wide registry.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) (*PrometheusMetricsCollector, error) {
	c := &PrometheusMetricsCollector{
		sagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagakit",
			Name:      "sagas_started_total",
			Help:      "Number of sagas started, labeled by saga type.",
		}, []string{"saga_type"}),
		sagasFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagakit",
			Name:      "sagas_finished_total",
			Help:      "Number of sagas that reached a terminal state, labeled by saga type and outcome.",
		}, []string{"saga_type", "outcome"}),
		sagaDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sagakit",
			Name:      "saga_duration_seconds",
			Help:      "Wall-clock duration from saga start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"saga_type", "outcome"}),
		stepsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagakit",
			Name:      "steps_dispatched_total",
			Help:      "Number of step commands dispatched, labeled by saga type, step and dispatch success.",
		}, []string{"saga_type", "step_id", "success"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagakit",
			Name:      "step_retries_total",
			Help:      "Number of step retry attempts scheduled.",
		}, []string{"saga_type", "step_id"}),
		compensationsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagakit",
			Name:      "compensations_dispatched_total",
			Help:      "Number of compensation commands dispatched, labeled by saga type, step and dispatch success.",
		}, []string{"saga_type", "step_id", "success"}),
	}

	for _, collector := range []prometheus.Collector{
		c.sagasStarted,
		c.sagasFinished,
		c.sagaDuration,
		c.stepsDispatched,
		c.stepRetries,
		c.compensationsDispatched,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordSagaStarted implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSagaStarted(sagaType string) {
	c.sagasStarted.WithLabelValues(sagaType).Inc()
}

// RecordSagaCompleted implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSagaCompleted(sagaType string, duration time.Duration) {
	c.sagasFinished.WithLabelValues(sagaType, "completed").Inc()
	c.sagaDuration.WithLabelValues(sagaType, "completed").Observe(duration.Seconds())
}

// RecordSagaCompensated implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSagaCompensated(sagaType string, duration time.Duration) {
	c.sagasFinished.WithLabelValues(sagaType, "compensated").Inc()
	c.sagaDuration.WithLabelValues(sagaType, "compensated").Observe(duration.Seconds())
}

// RecordSagaFailed implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSagaFailed(sagaType string) {
	c.sagasFinished.WithLabelValues(sagaType, "failed").Inc()
}

// RecordSagaCancelled implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSagaCancelled(sagaType string) {
	c.sagasFinished.WithLabelValues(sagaType, "cancelled").Inc()
}

// RecordStepDispatched implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordStepDispatched(sagaType, stepID string, success bool) {
	c.stepsDispatched.WithLabelValues(sagaType, stepID, strconv.FormatBool(success)).Inc()
}

// RecordStepRetried implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordStepRetried(sagaType, stepID string, attempt int) {
	c.stepRetries.WithLabelValues(sagaType, stepID).Inc()
}

// RecordCompensationDispatched implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordCompensationDispatched(sagaType, stepID string, success bool) {
	c.compensationsDispatched.WithLabelValues(sagaType, stepID, strconv.FormatBool(success)).Inc()
}
