// Package metrics defines and registers all custom Prometheus metrics for the
// account service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto; HTTP request metrics are added separately by
// the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthOperationsTotal counts auth service calls by result.
// Labels:
//   - operation: register, login, verify_email, forgot_password, reset_password,
//     resend_verification, logout
//   - outcome: "success" or the error code (e.g. "invalid_credentials")
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_operations_total",
		Help:      "Total number of auth operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// ── Mail metrics ──────────────────────────────────────────────────────────────

// MailEnqueuedTotal counts notification jobs handed to a queue.
// Labels:
//   - kind: "verification" or "password_reset"
//   - result: "queued" or "dropped" (queue full / backend error)
var MailEnqueuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_enqueued_total",
		Help:      "Total number of notification jobs offered to the mail queue.",
	},
	[]string{"kind", "result"},
)

// MailDeliveredTotal counts delivery attempts made by dispatcher workers.
// Labels:
//   - kind: "verification" or "password_reset"
//   - result: "sent" or "failed"
var MailDeliveredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_delivered_total",
		Help:      "Total number of notification delivery attempts, by result.",
	},
	[]string{"kind", "result"},
)

// MailQueueDepth tracks the number of jobs waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of notification jobs pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// MailDeliveryDuration measures a single SMTP delivery.
// Label:
//   - kind: "verification" or "password_reset"
var MailDeliveryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mail_delivery_duration_seconds",
		Help:      "Duration of a notification delivery from dequeue to SMTP QUIT.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"kind"},
)
