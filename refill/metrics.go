// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package refill

import "github.com/prometheus/client_golang/prometheus"

var (
	reserveGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gastank_reserve_native",
			Help: "Sponsor reserve balance in whole native units",
		},
	)
	topUpsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gastank_topups_total",
			Help: "Total number of broadcast top-up transactions",
		},
	)
	topUpFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gastank_topup_failures_total",
			Help: "Total number of failed top-up attempts",
		},
	)
	rpcFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gastank_rpc_failures_total",
			Help: "Total number of failed reserve polls",
		},
	)
	spendRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gastank_spend_records_total",
			Help: "Total number of spend records reconciled into the ledger",
		},
	)
)

// RegisterMetrics installs the refill metrics on the default registry.
// The daemon entry point calls it once; tests never register.
func RegisterMetrics() {
	prometheus.MustRegister(reserveGauge)
	prometheus.MustRegister(topUpsTotal)
	prometheus.MustRegister(topUpFailuresTotal)
	prometheus.MustRegister(rpcFailuresTotal)
	prometheus.MustRegister(spendRecordsTotal)
}
