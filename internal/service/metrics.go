package service

import (
	"machine-license/internal/license"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	licensesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "license",
		Name:      "issued_total",
		Help:      "Number of licenses issued.",
	})
	issueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "license",
		Name:      "issue_failures_total",
		Help:      "Number of rejected license issue requests by reason.",
	}, []string{"reason"})
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "license",
		Name:      "verifications_total",
		Help:      "Number of license verifications by verdict.",
	}, []string{"verdict"})
	revocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "license",
		Name:      "revocations_total",
		Help:      "Number of licenses revoked.",
	})
)

func init() {
	// 预先创建所有结果的序列，便于告警规则
	for _, v := range license.Verdicts() {
		verifications.WithLabelValues(v.String())
	}
}

// RecordIssued 记录一次签发
func RecordIssued() {
	licensesIssued.Inc()
}

// RecordIssueFailure 记录一次被拒绝的签发
func RecordIssueFailure(reason string) {
	issueFailures.WithLabelValues(reason).Inc()
}

// RecordVerdict 记录一次校验结果
func RecordVerdict(v license.Verdict) {
	verifications.WithLabelValues(v.String()).Inc()
}

// RecordRevocation 记录一次吊销
func RecordRevocation() {
	revocations.Inc()
}
