package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsPrepared counts prepared transactions by kind
	TransactionsPrepared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_transactions_prepared_total",
			Help: "Total number of transactions prepared and signed",
		},
		[]string{"network", "kind"},
	)

	// TransactionsBroadcast counts broadcast attempts by outcome
	TransactionsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_transactions_broadcast_total",
			Help: "Total number of transaction broadcast attempts",
		},
		[]string{"network", "status"},
	)

	// TransactionsResolved counts terminal receipt outcomes
	TransactionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_transactions_resolved_total",
			Help: "Total number of transactions resolved to a terminal state",
		},
		[]string{"network", "status"},
	)

	// ScanWindowsProcessed counts fully committed scan windows
	ScanWindowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_scan_windows_processed_total",
			Help: "Total number of token scan windows committed",
		},
		[]string{"network", "token"},
	)

	// ScanEventsApplied counts transfer events folded into the ledger
	ScanEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_scan_events_applied_total",
			Help: "Total number of transfer events applied to holder balances",
		},
		[]string{"network", "token"},
	)

	// ScanWindowDuration measures how long one window takes to fetch and apply
	ScanWindowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sto_scan_window_duration_seconds",
			Help:    "Time to fetch and apply one token scan window",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "token"},
	)

	// TokenHolders tracks the holder ledger size per token
	TokenHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sto_token_holders",
			Help: "Number of holder accounts tracked for a token",
		},
		[]string{"network", "token"},
	)

	// LastScannedBlock tracks the scan checkpoint per token
	LastScannedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sto_last_scanned_block",
			Help: "Last fully scanned block number by token",
		},
		[]string{"network", "token"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sto_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
