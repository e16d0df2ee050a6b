// Copyright (C) 2023, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReceiverMetrics records the outcome of every relayed message.
type ReceiverMetrics struct {
	settledMessageCount   *prometheus.CounterVec
	rejectedMessageCount  *prometheus.CounterVec
	settleLatencyMS       *prometheus.GaugeVec
	settlementSequence    prometheus.Gauge
	configOperationCount  *prometheus.CounterVec
	settledCacheHitsCount prometheus.Counter
}

func NewReceiverMetrics(registerer prometheus.Registerer) *ReceiverMetrics {
	m := ReceiverMetrics{
		settledMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settled_message_count",
				Help: "Number of relayed messages settled",
			},
			[]string{"source_chain", "denom"},
		),
		rejectedMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rejected_message_count",
				Help: "Number of relayed messages rejected",
			},
			[]string{"failure_reason"},
		),
		settleLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settle_latency_ms",
				Help: "Latency of settling a relayed message in milliseconds",
			},
			[]string{"source_chain"},
		),
		settlementSequence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "settlement_sequence",
				Help: "Sequence number of the last committed settlement",
			},
		),
		configOperationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "config_operation_count",
				Help: "Number of configuration operations by outcome",
			},
			[]string{"operation", "result"},
		),
		settledCacheHitsCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "settled_cache_hits_count",
				Help: "Number of duplicates rejected from the settled-id cache",
			},
		),
	}

	registerer.MustRegister(m.settledMessageCount)
	registerer.MustRegister(m.rejectedMessageCount)
	registerer.MustRegister(m.settleLatencyMS)
	registerer.MustRegister(m.settlementSequence)
	registerer.MustRegister(m.configOperationCount)
	registerer.MustRegister(m.settledCacheHitsCount)

	return &m
}

func (m *ReceiverMetrics) Settled(sourceChain, denom string, sequence uint64, latencyMS int64) {
	m.settledMessageCount.WithLabelValues(sourceChain, denom).Inc()
	m.settleLatencyMS.WithLabelValues(sourceChain).Set(float64(latencyMS))
	m.settlementSequence.Set(float64(sequence))
}

// Rejected counts a rejection by reason only. The source chain of a rejected
// message is caller-supplied and must not become a label value.
func (m *ReceiverMetrics) Rejected(reason string) {
	m.rejectedMessageCount.WithLabelValues(reason).Inc()
}

func (m *ReceiverMetrics) ConfigOperation(operation, result string) {
	m.configOperationCount.WithLabelValues(operation, result).Inc()
}

func (m *ReceiverMetrics) SettledCacheHit() {
	m.settledCacheHitsCount.Inc()
}
