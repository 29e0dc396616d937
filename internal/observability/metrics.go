package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cqcctl",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Requests written to a CQC node, by control type and instruction.",
		},
		[]string{"ctrl", "instr"},
	)
	sessionReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cqcctl",
			Subsystem: "session",
			Name:      "replies_total",
			Help:      "Control headers read from a CQC node, by control type.",
		},
		[]string{"ctrl"},
	)
	sessionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cqcctl",
			Subsystem: "session",
			Name:      "failures_total",
			Help:      "Failed session operations, by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
	sessionReplyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cqcctl",
			Subsystem: "session",
			Name:      "reply_wait_seconds",
			Help:      "Time spent blocked waiting for a reply.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionRequests, sessionReplies, sessionFailures, sessionReplyWait)
	})
}

func RecordRequest(ctrl, instr string) {
	RegisterMetrics()
	sessionRequests.WithLabelValues(ctrl, instr).Inc()
}

func RecordReply(ctrl string) {
	RegisterMetrics()
	sessionReplies.WithLabelValues(ctrl).Inc()
}

func RecordFailure(op, kind string) {
	RegisterMetrics()
	sessionFailures.WithLabelValues(op, kind).Inc()
}

func ObserveReplyWait(op string, d time.Duration) {
	RegisterMetrics()
	sessionReplyWait.WithLabelValues(op).Observe(d.Seconds())
}
