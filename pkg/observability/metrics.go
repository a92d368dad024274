// Package observability はstageplan webのPrometheusメトリクスを定義する。
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stageplan",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Authorization gate decisions partitioned by route class and action.",
	}, []string{"class", "action"})

	sessionVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stageplan",
		Subsystem: "session",
		Name:      "verifications_total",
		Help:      "Session verification outcomes (valid, invalid, absent, error).",
	}, []string{"result"})

	identityDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stageplan",
		Subsystem: "identity",
		Name:      "request_duration_seconds",
		Help:      "Latency of identity service round trips.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	projectsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stageplan",
		Subsystem: "projects",
		Name:      "created_total",
		Help:      "Number of projects created.",
	})
)

// 検証結果のラベル値。
const (
	VerificationValid   = "valid"
	VerificationInvalid = "invalid"
	VerificationAbsent  = "absent"
	VerificationError   = "error"
)

func init() {
	prometheus.MustRegister(gateDecisions, sessionVerifications, identityDuration, projectsCreated)
}

// RecordGateDecision は認可ゲートの判定結果を記録する。
func RecordGateDecision(class, action string) {
	gateDecisions.WithLabelValues(class, action).Inc()
}

// RecordVerification はセッション検証結果を記録する。
func RecordVerification(result string) {
	sessionVerifications.WithLabelValues(result).Inc()
}

// ObserveIdentityRequest はIDサービス呼び出しの所要時間を記録する。
func ObserveIdentityRequest(operation string, started time.Time) {
	identityDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordProjectCreated はプロジェクト作成数を加算する。
func RecordProjectCreated() {
	projectsCreated.Inc()
}
