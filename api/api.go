// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

// Package api exposes the daemon's read-only HTTP surface: health, a
// status snapshot of the ledger and sponsor, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HITEYY/go-gastank/core/sponsor"
	"github.com/HITEYY/go-gastank/ledger"
	"github.com/HITEYY/go-gastank/refill"
)

const recentEventLimit = 20

// StatusSource reports the replenishment controller's live view.
// *refill.Controller satisfies it.
type StatusSource interface {
	Snapshot() refill.Snapshot
}

// Server answers status queries. The paymaster and the status source are
// optional: a daemon watching an on-chain sponsor has no in-process
// contract to report on, and embedded runs may not carry a controller.
type Server struct {
	store   ledger.Store
	pm      *sponsor.TokenPaymaster
	src     StatusSource
	started time.Time
}

func NewServer(store ledger.Store, pm *sponsor.TokenPaymaster, src StatusSource) *Server {
	return &Server{store: store, pm: pm, src: src, started: time.Now()}
}

// Router mounts the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type statusResponse struct {
	Status    string         `json:"status"`
	Uptime    string         `json:"uptime"`
	Reserve   string         `json:"reserve,omitempty"`
	Threshold string         `json:"threshold,omitempty"`
	LastTopUp *time.Time     `json:"lastTopUp,omitempty"`
	Totals    ledger.Totals  `json:"totals"`
	Events    []ledger.Event `json:"recentEvents"`
	Spons     *sponsorStatus `json:"sponsor,omitempty"`
}

type sponsorStatus struct {
	Address   common.Address `json:"address"`
	Rate      string         `json:"rate"`
	Settled   uint64         `json:"settledOperations"`
	Collected string         `json:"tokensCollected"`
	Deposited string         `json:"nativeDeposited"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.Totals(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	events, err := s.store.Events(r.Context(), recentEventLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	resp := statusResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Totals: totals,
		Events: events,
	}
	if s.src != nil {
		snap := s.src.Snapshot()
		if snap.Reserve != nil {
			resp.Reserve = refill.FormatNative(snap.Reserve)
		}
		resp.Threshold = refill.FormatNative(snap.Threshold)
		if !snap.LastTopUp.IsZero() {
			at := snap.LastTopUp
			resp.LastTopUp = &at
		}
	}
	if s.pm != nil {
		settled, collected, deposited := s.pm.Stats()
		resp.Spons = &sponsorStatus{
			Address:   s.pm.Address(),
			Rate:      s.pm.Rate().Dec(),
			Settled:   settled,
			Collected: collected.Dec(),
			Deposited: deposited.Dec(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
