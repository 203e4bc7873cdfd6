// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package metrics exports flight transmission progress to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/pion/dtlsflight"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "dtlsflight"

// Flight results.
const (
	ResultOK        = "ok"
	ResultTimeout   = "timeout"
	ResultTransport = "transport"
	ResultInternal  = "internal"
	ResultTooLarge  = "too_large"
	ResultOther     = "other"
)

//nolint:gochecknoglobals
var (
	flights = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "flights_total",
			Help:      "Flights whose transmission finished, by result",
		},
		[]string{"role", "result"},
	)
	retransmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "retransmissions_total",
			Help:      "Flight retransmissions",
		},
		[]string{"role"},
	)
	fragmentsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "fragments_sent_total",
			Help:      "Handshake fragments written",
		},
		[]string{"role"},
	)
	handshakeBytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "handshake_bytes_sent_total",
			Help:      "Handshake body bytes written, retransmissions included",
		},
		[]string{"role"},
	)
	flightAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "flight_attempts",
			Help:      "Transmissions needed per flight",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"role"},
	)
)

// NewFlightTracer creates a new tracer using the default Prometheus registerer.
// It can be passed to dtlsflight.WithFlightTracer.
func NewFlightTracer() *dtlsflight.FlightTracer {
	return NewFlightTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewFlightTracerWithRegisterer creates a new tracer using a given Prometheus registerer.
func NewFlightTracerWithRegisterer(registerer prometheus.Registerer) *dtlsflight.FlightTracer {
	for _, c := range [...]prometheus.Collector{
		flights,
		retransmissions,
		fragmentsSent,
		handshakeBytesSent,
		flightAttempts,
	} {
		if err := registerer.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}

	return &dtlsflight.FlightTracer{
		SentFragment: func(role dtlsflight.Role, _ handshake.Type, _ uint16, _, length int) {
			labels := getLabels()
			defer putLabels(labels)

			*labels = append(*labels, role.String())
			fragmentsSent.WithLabelValues(*labels...).Inc()
			handshakeBytesSent.WithLabelValues(*labels...).Add(float64(length))
		},
		Retransmitted: func(role dtlsflight.Role, _ int) {
			retransmissions.WithLabelValues(role.String()).Inc()
		},
		FinishedFlight: func(role dtlsflight.Role, attempts int, _ time.Duration, err error) {
			labels := getLabels()
			defer putLabels(labels)

			*labels = append(*labels, role.String())
			flightAttempts.WithLabelValues(*labels...).Observe(float64(attempts))
			*labels = append(*labels, Result(err))
			flights.WithLabelValues(*labels...).Inc()
		},
	}
}

// Result maps the error returned by Transmit to the result label.
// Invariant violations win over the failure they were joined with.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case dtlsflight.IsInternalInvariant(err):
		return ResultInternal
	case dtlsflight.IsTimeout(err):
		return ResultTimeout
	case dtlsflight.IsTransportFailure(err):
		return ResultTransport
	case errors.Is(err, dtlsflight.ErrMemoryExhausted):
		return ResultTooLarge
	default:
		return ResultOther
	}
}
