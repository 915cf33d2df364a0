// Registers:
//
//	#signalflow_tickers_scanned_total
//	#signalflow_ticker_errors_total
//	#signalflow_signals_total
//	#signalflow_run_duration_seconds
//	#go_* and process_* system metrics
//
// Exposes them on :2112/metrics using Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once           sync.Once
	tickersScanned *prometheus.CounterVec
	tickerErrors   *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	runDuration    prometheus.Histogram
)

func Init() {
	once.Do(func() {
		tickersScanned = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_tickers_scanned_total",
				Help: "Number of tickers fully evaluated in scan runs",
			},
			[]string{"result"},
		)

		tickerErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_ticker_errors_total",
				Help: "Number of per-ticker fetch or evaluation failures",
			},
			[]string{"issue"},
		)

		signalsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_signals_total",
				Help: "Number of indicator signals emitted",
			},
			[]string{"indicator"},
		)

		runDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalflow_run_duration_seconds",
				Help:    "Wall-clock duration of complete scan runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		)

		_ = prometheus.Register(tickersScanned)
		_ = prometheus.Register(tickerErrors)
		_ = prometheus.Register(signalsTotal)
		_ = prometheus.Register(runDuration)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe("0.0.0.0:2112", nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementScanned increases the scanned counter for a result label
// ("clean" or "issues").
func IncrementScanned(result string) {
	if tickersScanned != nil {
		tickersScanned.WithLabelValues(result).Inc()
	}
}

// IncrementError increases the error counter for a given issue tag.
func IncrementError(issue string) {
	if tickerErrors != nil {
		tickerErrors.WithLabelValues(issue).Inc()
	}
}

// IncrementSignals increases the signal counter for an indicator instance.
func IncrementSignals(indicator string, count int) {
	if signalsTotal != nil && count > 0 {
		signalsTotal.WithLabelValues(indicator).Add(float64(count))
	}
}

// ObserveRunDuration records the wall-clock time of a finished run.
func ObserveRunDuration(seconds float64) {
	if runDuration != nil {
		runDuration.Observe(seconds)
	}
}
