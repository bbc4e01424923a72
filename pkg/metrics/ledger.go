package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks balance guard outcomes, settlement transitions and the
// detective controls that watch them. A nil receiver is a no-op.
type LedgerMetrics struct {
	adjustments    *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
	frozen         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	fraudSignals   *prometheus.CounterVec
	stuck          prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_balance_adjustments_total",
			Help: "Balance guard attempts by category and outcome.",
		}, []string{"category", "outcome"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_wallet_reconciliation_checks_total",
			Help: "Wallet balance reconciliation results.",
		}, []string{"result"}),
		frozen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_wallets_frozen_total",
			Help: "Wallets frozen by source.",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_withdrawal_transitions_total",
			Help: "Withdrawal state transitions by target status.",
		}, []string{"status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_webhook_reconciliations_total",
			Help: "Gateway callback reconciliation results.",
		}, []string{"result"}),
		fraudSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipwallet_fraud_signals_total",
			Help: "Fraud guard evaluations by guard and flag.",
		}, []string{"guard", "flagged"}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shipwallet_withdrawals_stuck",
			Help: "Dispatched withdrawals without a gateway callback past the operational timeout.",
		}),
	}
	reg.MustRegister(m.adjustments, m.reconciliation, m.frozen, m.transitions, m.webhooks, m.fraudSignals, m.stuck)
	return m
}

func (m *LedgerMetrics) IncAdjustment(category, outcome string) {
	if m == nil || m.adjustments == nil {
		return
	}
	m.adjustments.WithLabelValues(normalizeLabel(category), normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncReconciliation(result string) {
	if m == nil || m.reconciliation == nil {
		return
	}
	m.reconciliation.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *LedgerMetrics) IncFrozen(source string) {
	if m == nil || m.frozen == nil {
		return
	}
	m.frozen.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *LedgerMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *LedgerMetrics) IncWebhook(result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *LedgerMetrics) IncFraudSignal(guard string, flagged bool) {
	if m == nil || m.fraudSignals == nil {
		return
	}
	m.fraudSignals.WithLabelValues(normalizeLabel(guard), strconv.FormatBool(flagged)).Inc()
}

// SetStuckWithdrawals publishes the latest stuck count.
func (m *LedgerMetrics) SetStuckWithdrawals(n int) {
	if m == nil || m.stuck == nil {
		return
	}
	m.stuck.Set(float64(n))
}
