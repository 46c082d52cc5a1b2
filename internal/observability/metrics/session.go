// Package metrics records session lifecycle counters with Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	obserrors "github.com/civicwatch/civicwatch/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultSuppressed = "suppressed"
	ResultSkipped    = "skipped"
)

// Refresh sources.
const (
	SourceInterceptor = "interceptor"
	SourceController  = "controller"
)

// Recorder holds the session counters. A nil *Recorder is a no-op.
type Recorder struct {
	refreshes *prometheus.CounterVec
	retries   *prometheus.CounterVec
	logins    *prometheus.CounterVec
	liveness  *prometheus.CounterVec
	logouts   prometheus.Counter
}

// NewRecorder creates the counters under namespace and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer, namespace string) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh attempts by source and result.",
		}, []string{"source", "result", "error_class"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests re-issued after a 401 by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result", "error_class"}),
		liveness: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_checks_total",
			Help:      "Session liveness checks by resulting state.",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Local logouts.",
		}),
	}

	for _, c := range []prometheus.Collector{r.refreshes, r.retries, r.logins, r.liveness, r.logouts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Refresh counts a refresh attempt. err is classified when result is ResultError.
func (r *Recorder) Refresh(source, result string, err error) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(source, result, errorClass(result, err)).Inc()
}

// Retry counts a re-issued request.
func (r *Recorder) Retry(result string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(result).Inc()
}

// Login counts a login attempt.
func (r *Recorder) Login(result string, err error) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(result, errorClass(result, err)).Inc()
}

// Liveness counts a liveness check by the state it produced.
func (r *Recorder) Liveness(state string) {
	if r == nil {
		return
	}
	r.liveness.WithLabelValues(state).Inc()
}

// Logout counts a logout.
func (r *Recorder) Logout() {
	if r == nil {
		return
	}
	r.logouts.Inc()
}

func errorClass(result string, err error) string {
	if err == nil || result != ResultError {
		return ""
	}
	return obserrors.Classify(err)
}
