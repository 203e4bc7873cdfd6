// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"time"

	"github.com/pion/dtlsflight/pkg/protocol/handshake"
)

// FlightTracer holds optional callbacks invoked as a Transmitter progresses.
// Nil callbacks are skipped. Callbacks run synchronously on the goroutine
// calling Transmit.
type FlightTracer struct {
	StartedFlight  func(role Role, messages int)
	SentFragment   func(role Role, typ handshake.Type, epoch uint16, offset, length int)
	Retransmitted  func(role Role, attempt int)
	UpdatedState   func(role Role, state FlightState)
	FinishedFlight func(role Role, attempts int, accumulatedWait time.Duration, err error)
}

func (t *FlightTracer) startedFlight(role Role, messages int) {
	if t.StartedFlight != nil {
		t.StartedFlight(role, messages)
	}
}

func (t *FlightTracer) sentFragment(role Role, typ handshake.Type, epoch uint16, offset, length int) {
	if t.SentFragment != nil {
		t.SentFragment(role, typ, epoch, offset, length)
	}
}

func (t *FlightTracer) retransmitted(role Role, attempt int) {
	if t.Retransmitted != nil {
		t.Retransmitted(role, attempt)
	}
}

func (t *FlightTracer) updatedState(role Role, state FlightState) {
	if t.UpdatedState != nil {
		t.UpdatedState(role, state)
	}
}

func (t *FlightTracer) finishedFlight(role Role, attempts int, accumulatedWait time.Duration, err error) {
	if t.FinishedFlight != nil {
		t.FinishedFlight(role, attempts, accumulatedWait, err)
	}
}
