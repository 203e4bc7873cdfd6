// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pion/dtlsflight/pkg/protocol"
)

// Error kind markers. Every error returned by Transmit matches exactly one of
// ErrTransportFailure, ErrHandshakeTimeout, ErrInternalInvariant or
// ErrMemoryExhausted through errors.Is, or is ErrWouldBlock.
var (
	// ErrTransportFailure marks errors propagated from the record writer or receiver.
	ErrTransportFailure = errors.New("transport failure") //nolint:err113

	// ErrInternalInvariant marks bookkeeping defects such as a usage count
	// driven below zero. These are bugs, not protocol failures.
	ErrInternalInvariant = errors.New("internal invariant violation") //nolint:err113
)

// Typed errors.
var (
	// ErrHandshakeTimeout is returned when the total handshake deadline
	// elapses before the peer answers a flight.
	ErrHandshakeTimeout = &TimeoutError{Err: errors.New("handshake timeout: peer unresponsive")} //nolint:err113

	// ErrWouldBlock is returned in non-blocking mode when the flight was sent
	// and no response is available yet. Call Transmit again to continue.
	ErrWouldBlock = &TemporaryError{Err: errors.New("operation would block")} //nolint:err113

	// ErrRecvTimeout is returned by a Receiver when no data arrived within the timeout.
	ErrRecvTimeout = &TimeoutError{Err: errors.New("receive timed out")} //nolint:err113

	// ErrMemoryExhausted is returned when a message cannot be fragmented
	// because its body exceeds what a handshake header can describe.
	ErrMemoryExhausted = &FatalError{Err: errors.New("handshake message too large to fragment")} //nolint:err113

	// ErrEpochNotFound is returned when an epoch referenced by a message has
	// already been discarded.
	ErrEpochNotFound = &InternalError{Err: fmt.Errorf("%w: epoch not found", ErrInternalInvariant)}

	// ErrUsageCountNegative is returned when releasing a message would drive
	// its epoch usage count below zero.
	ErrUsageCountNegative = &InternalError{Err: fmt.Errorf("%w: epoch usage count below zero", ErrInternalInvariant)}

	// ErrEpochInUse is returned when discarding an epoch still referenced by buffered messages.
	ErrEpochInUse = &TemporaryError{Err: errors.New("epoch still referenced by buffered messages")} //nolint:err113

	// ErrEpochExists is returned when adding an epoch twice.
	ErrEpochExists = &FatalError{Err: errors.New("epoch already registered")} //nolint:err113

	errInvalidFSMTransition   = &InternalError{Err: fmt.Errorf("%w: invalid state machine transition", ErrInternalInvariant)}
	errSequenceNumberOverflow = &InternalError{Err: fmt.Errorf("%w: sequence number overflow", ErrInternalInvariant)}

	//nolint:err113
	errNilTransport = &FatalError{Err: errors.New("transmitter can not be created with a nil transport")}
	//nolint:err113
	errNilFlight = &FatalError{Err: errors.New("transmitter can not be created with a nil flight")}
	//nolint:err113
	errNilEpochTable = &FatalError{Err: errors.New("flight can not be created with a nil epoch table")}
	//nolint:err113
	errNilConn = &FatalError{Err: errors.New("transport can not be created with a nil conn")}
	//nolint:err113
	errInvalidTimeout = &FatalError{Err: errors.New("timeouts must not be negative")}
	//nolint:err113
	errInvalidMTU = &FatalError{Err: errors.New("MTU must be positive")}
	//nolint:err113
	errInvalidRole = &FatalError{Err: errors.New("invalid role")}
	//nolint:err113
	errNilLoggerFactory = &FatalError{Err: errors.New("logger factory must not be nil")}
	//nolint:err113
	errNilClock = &FatalError{Err: errors.New("clock must not be nil")}
	//nolint:err113
	errNilTracer = &FatalError{Err: errors.New("flight tracer must not be nil")}
	//nolint:err113
	errTransmitInProgress = &TemporaryError{Err: errors.New("flight can not be modified during transmission")}
	//nolint:err113
	errBufferTooSmall = &TemporaryError{Err: errors.New("buffer is too small")}
	//nolint:err113
	errFragmentBufferOverflow = &FatalError{Err: errors.New("fragment buffer overflow")}
	//nolint:err113
	errInvalidVersion = &FatalError{Err: errors.New("unsupported record version")}
	//nolint:err113
	errInconsistentFragment = &FatalError{Err: errors.New("fragment disagrees with earlier fragments of its message")}
)

// FatalError indicates that the DTLS connection is no longer available.
// It is mainly caused by wrong configuration of server or client.
type FatalError = protocol.FatalError

// InternalError indicates and internal error caused by the implementation,
// and the DTLS connection is no longer available.
// It is mainly caused by bugs or tried to use unimplemented features.
type InternalError = protocol.InternalError

// TemporaryError indicates that the DTLS connection is still available, but the request was failed temporary.
type TemporaryError = protocol.TemporaryError

// TimeoutError indicates that the request was timed out.
type TimeoutError = protocol.TimeoutError

// HandshakeError indicates that the handshake failed.
type HandshakeError = protocol.HandshakeError

// TransportError wraps an error returned by the record writer, flush or
// receive primitive. It matches ErrTransportFailure and unwraps to the cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap implements Go1.13 error unwrapper.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransportFailure.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure //nolint:errorlint
}

// IsTimeout reports whether err is the total handshake deadline expiring.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHandshakeTimeout)
}

// IsTransportFailure reports whether err came from the transport collaborators.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}

// IsInternalInvariant reports whether err is an implementation defect rather
// than a protocol-level failure.
func IsInternalInvariant(err error) bool {
	return errors.Is(err, ErrInternalInvariant)
}

func transportError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	return &TransportError{Op: op, Err: err}
}

// isRecvTimeout reports whether a receive error means no data arrived in time.
func isRecvTimeout(err error) bool {
	if errors.Is(err, ErrRecvTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error

	return errors.As(netError(err), &ne) && ne.Timeout()
}

// netError translates an error from underlying Conn to corresponding net.Error.
func netError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Return io.EOF and context errors as is.
		return err
	}

	var (
		ne      net.Error
		opError *net.OpError
		se      *os.SyscallError
	)

	if errors.As(err, &opError) { //nolint:nestif
		if opError.Timeout() {
			return &TimeoutError{Err: err}
		}
		if errors.As(opError, &se) {
			if se.Timeout() {
				return &TimeoutError{Err: err}
			}
		}
	}

	if errors.As(err, &ne) {
		return err
	}

	return &FatalError{Err: err}
}
