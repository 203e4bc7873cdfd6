// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"time"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
	"github.com/pion/logging"
)

const (
	// DefaultRetransmitInterval is the wait between two transmissions of a flight.
	DefaultRetransmitInterval = time.Second
	// DefaultTotalTimeout bounds the accumulated wait for one flight.
	DefaultTotalTimeout = 60 * time.Second
	// DefaultMTU is the handshake fragment payload size that keeps one
	// fragment inside a default-sized datagram.
	DefaultMTU = defaultDatagramSize - recordlayer.FixedHeaderSize - handshake.HeaderLength
)

// TransmitterOption configures a Transmitter.
type TransmitterOption interface {
	applyTransmitter(*config) error
}

// TransportOption configures a DatagramTransport.
type TransportOption interface {
	applyTransport(*config) error
}

// Option is an option that can be used with both a Transmitter and a
// DatagramTransport.
type Option interface {
	TransmitterOption
	TransportOption
}

// config is the internal configuration of a Transmitter or DatagramTransport.
type config struct {
	retransmitInterval    time.Duration
	totalTimeout          time.Duration
	mtu                   int
	role                  Role
	resumed               bool
	emptyTerminalFragment bool
	loggerFactory         logging.LoggerFactory
	tracer                *FlightTracer
	clock                 Clock

	datagramSize int
	version      protocol.Version
}

// applyDefaults applies default values to the config.
func (c *config) applyDefaults() {
	c.retransmitInterval = DefaultRetransmitInterval
	c.totalTimeout = DefaultTotalTimeout
	c.mtu = DefaultMTU
	c.role = RoleClient
	c.emptyTerminalFragment = true
	c.loggerFactory = logging.NewDefaultLoggerFactory()
	c.tracer = &FlightTracer{}
	c.clock = systemClock{}
	c.datagramSize = defaultDatagramSize
	c.version = protocol.Version1_2
}

// sharedOption wraps an apply function that works for both transmitters and transports.
type sharedOption func(*config) error

func (o sharedOption) applyTransmitter(c *config) error { return o(c) }
func (o sharedOption) applyTransport(c *config) error   { return o(c) }

type transmitterOption func(*config) error

func (o transmitterOption) applyTransmitter(c *config) error { return o(c) }

type transportOption func(*config) error

func (o transportOption) applyTransport(c *config) error { return o(c) }

// WithRetransmitInterval sets the wait between two transmissions of a flight.
// Zero selects non-blocking operation: Transmit sends once, polls once and
// returns ErrWouldBlock while the peer has not answered.
func WithRetransmitInterval(interval time.Duration) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if interval < 0 {
			return errInvalidTimeout
		}
		c.retransmitInterval = interval

		return nil
	})
}

// WithTotalTimeout bounds the accumulated wait of one flight.
func WithTotalTimeout(timeout time.Duration) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if timeout < 0 {
			return errInvalidTimeout
		}
		c.totalTimeout = timeout

		return nil
	})
}

// WithMTU sets the largest handshake body payload carried by one fragment.
func WithMTU(mtu int) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if mtu <= 0 || mtu > handshake.MaxLength {
			return errInvalidMTU
		}
		c.mtu = mtu

		return nil
	})
}

// WithRole sets the side of the handshake the transmitter plays.
func WithRole(role Role) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if role != RoleClient && role != RoleServer {
			return errInvalidRole
		}
		c.role = role

		return nil
	})
}

// WithResumed marks the handshake as resuming an earlier session.
func WithResumed(resumed bool) TransmitterOption {
	return transmitterOption(func(c *config) error {
		c.resumed = resumed

		return nil
	})
}

// WithoutEmptyTerminalFragment stops bodies whose length is a non-zero
// multiple of the MTU from ending with a zero-length fragment.
func WithoutEmptyTerminalFragment() TransmitterOption {
	return transmitterOption(func(c *config) error {
		c.emptyTerminalFragment = false

		return nil
	})
}

// WithFlightTracer sets the callbacks notified of flight progress.
func WithFlightTracer(tracer *FlightTracer) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if tracer == nil {
			return errNilTracer
		}
		c.tracer = tracer

		return nil
	})
}

// WithClock sets the time source used to track non-blocking flights.
func WithClock(clock Clock) TransmitterOption {
	return transmitterOption(func(c *config) error {
		if clock == nil {
			return errNilClock
		}
		c.clock = clock

		return nil
	})
}

// WithLoggerFactory sets the logger factory.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return sharedOption(func(c *config) error {
		if factory == nil {
			return errNilLoggerFactory
		}
		c.loggerFactory = factory

		return nil
	})
}

// WithDatagramSize sets the largest datagram a DatagramTransport writes when
// packing records together. A single record larger than size is still sent.
func WithDatagramSize(size int) TransportOption {
	return transportOption(func(c *config) error {
		if size < recordlayer.FixedHeaderSize {
			return errInvalidMTU
		}
		c.datagramSize = size

		return nil
	})
}

// WithRecordVersion sets the protocol version written in record headers.
func WithRecordVersion(version protocol.Version) TransportOption {
	return transportOption(func(c *config) error {
		if !protocol.IsValidVersion(version) {
			return errInvalidVersion
		}
		c.version = version

		return nil
	})
}
