// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Updater metrics
	updateRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundled_update_runs_total",
		Help: "Total number of bundle update runs by outcome",
	}, []string{"outcome", "trigger"}) // outcome=updated|unchanged|failed trigger=load|retry

	updateBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundled_update_bytes",
		Help: "Size in bytes of the last downloaded bundle",
	})

	updateDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bundled_update_duration_seconds",
		Help:    "Duration of bundle update runs",
		Buckets: prometheus.DefBuckets,
	})

	updateSupersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundled_update_superseded_total",
		Help: "Total number of in-flight update runs cancelled by a newer trigger",
	})

	// Retry metrics
	RetryDispatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundled_retry_dispatch_total",
		Help: "Total number of retries dispatched on activity ready",
	})

	StickyError = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundled_sticky_error",
		Help: "Whether a failed update is pending retry (1) or not (0)",
	})

	RecoveryActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundled_recovery_actions_total",
		Help: "Recovery actions chosen by the user",
	}, []string{"action"}) // action=reload|delete_and_reload

	// Lifecycle metrics
	ModuleDispatchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundled_module_dispatch_errors_total",
		Help: "Total number of module failures during lifecycle dispatch",
	}, []string{"module", "stage"})

	// Config metrics
	configFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundled_loader_config_fallback_total",
		Help: "Total number of times the loader config fell back to defaults",
	})
)

func RecordUpdateRun(outcome, trigger string, seconds float64) {
	updateRunsTotal.WithLabelValues(outcome, trigger).Inc()
	updateDurationSeconds.Observe(seconds)
}

func RecordBundleBytes(n int) { updateBytes.Set(float64(n)) }
func IncUpdateSuperseded()    { updateSupersededTotal.Inc() }
func IncRetryDispatch()       { RetryDispatchTotal.Inc() }

func SetStickyError(pending bool) {
	if pending {
		StickyError.Set(1)
		return
	}
	StickyError.Set(0)
}

func IncRecoveryAction(action string) { RecoveryActionsTotal.WithLabelValues(action).Inc() }

func IncModuleDispatchError(module, stage string) {
	ModuleDispatchErrorsTotal.WithLabelValues(module, stage).Inc()
}

func IncConfigFallback() { configFallbackTotal.Inc() }
