package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ghost-cover/ghostcover-bot/internal/broadcast"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	flowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Total number of flow transitions labeled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total number of broadcast deliveries labeled by result",
		},
		[]string{"result"},
	)
	backupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backups_total",
			Help: "Total number of delivered backups",
		},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscribers",
			Help: "Current number of subscribers",
		},
	)
	usersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "known_users",
			Help: "Current number of users with an economy record",
		},
	)
	pendingWithdrawalsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_withdrawals",
			Help: "Current number of users with an outstanding withdrawal",
		},
	)
)

func init() {
	flow.RegisterTransitionRecorder(RecordFlowTransition)
	broadcast.RegisterDeliveryRecorder(RecordBroadcast)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordFlowTransition tracks wizard outcomes.
func RecordFlowTransition(kind, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	flowTransitionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordBroadcast adds one broadcast's delivery counts.
func RecordBroadcast(sent, failed int) {
	broadcastDeliveriesTotal.WithLabelValues("sent").Add(float64(sent))
	broadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordBackup counts a delivered backup.
func RecordBackup() {
	backupsTotal.Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// StoreCollector periodically gathers document-level counts and emits gauges.
type StoreCollector struct {
	store *store.Manager
}

// NewStoreCollector builds a collector bound to the state store.
func NewStoreCollector(st *store.Manager) *StoreCollector {
	return &StoreCollector{store: st}
}

// Run polls the store every 10 seconds until ctx is cancelled.
func (c *StoreCollector) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		c.collect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *StoreCollector) collect() {
	c.store.View(func(doc *domain.Document) {
		subscribersGauge.Set(float64(len(doc.Subscribers)))
		usersGauge.Set(float64(len(doc.Users)))

		pending := 0
		for _, u := range doc.Users {
			if u.PendingWithdrawal != nil {
				pending++
			}
		}
		pendingWithdrawalsGauge.Set(float64(pending))
	})
}
