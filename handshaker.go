// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"context"
	"errors"
	"time"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/logging"
)

// [RFC6347 Section-4.2.4]
//
//	   +-----------+
//	   | PREPARING |
//	   +-----------+
//	         |
//	         | Lock flight, start timer
//	        \|/
//	   +-----------+
//	   |  SENDING  |<-----------------------+
//	   +-----------+                        |
//	         |                              |
//	         | Fragment, write and flush    |
//	        \|/                             |
//	   +-----------+  Nothing received  +------------+
//	   |  WAITING  |------------------->| RETRANSMIT |
//	   +-----------+  (or peer resent)  +------------+
//	     |       |
//	     |       | Total timeout reached
//	     |      \|/
//	     |   +---------+
//	     |   | ABORTED |
//	     |   +---------+
//	     | Peer progressed
//	    \|/
//	   +-----------+
//	   |   DONE    |
//	   +-----------+
//
// Every exit from the loop releases the flight, except a non-blocking wait
// that found nothing, which keeps the flight for the next call.

// FlightState is the state of a Transmitter.
type FlightState uint8

// FlightState enums.
const (
	FlightAborted FlightState = iota
	FlightPreparing
	FlightSending
	FlightWaiting
	FlightRetransmit
	FlightDone
)

func (s FlightState) String() string {
	switch s {
	case FlightAborted:
		return "Aborted"
	case FlightPreparing:
		return "Preparing"
	case FlightSending:
		return "Sending"
	case FlightWaiting:
		return "Waiting"
	case FlightRetransmit:
		return "Retransmit"
	case FlightDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Stats describes the progress of the current or last flight.
type Stats struct {
	State           FlightState
	Attempts        int
	AccumulatedWait time.Duration
}

// Transmitter sends a Flight until the peer shows progress, the total
// timeout elapses or the transport fails. A Transmitter is not safe for
// concurrent use.
type Transmitter struct {
	transport Transport
	flight    *Flight
	cfg       *config
	log       logging.LeveledLogger

	state           FlightState
	attempts        int
	accumulatedWait time.Duration
	flightStart     time.Time
	lastMessage     *Message
	peek            [1]byte
}

// NewTransmitter returns a Transmitter sending flight over transport.
func NewTransmitter(transport Transport, flight *Flight, opts ...TransmitterOption) (*Transmitter, error) {
	if transport == nil {
		return nil, errNilTransport
	}
	if flight == nil {
		return nil, errNilFlight
	}

	cfg := &config{}
	cfg.applyDefaults()
	for _, opt := range opts {
		if err := opt.applyTransmitter(cfg); err != nil {
			return nil, err
		}
	}

	return &Transmitter{
		transport: transport,
		flight:    flight,
		cfg:       cfg,
		log:       cfg.loggerFactory.NewLogger("dtls"),
		state:     FlightPreparing,
	}, nil
}

// SetTimeouts changes the retransmission interval and the total timeout used
// by the next flight. A zero retransmit interval selects non-blocking mode.
func (t *Transmitter) SetTimeouts(retransmit, total time.Duration) error {
	if retransmit < 0 || total < 0 {
		return errInvalidTimeout
	}
	t.cfg.retransmitInterval = retransmit
	t.cfg.totalTimeout = total

	return nil
}

// Stats returns the progress of the current or last flight.
func (t *Transmitter) Stats() Stats {
	return Stats{
		State:           t.state,
		Attempts:        t.attempts,
		AccumulatedWait: t.accumulatedWait,
	}
}

// Transmit sends the buffered flight and waits for the peer to progress.
//
// It returns nil once the peer answered, ErrHandshakeTimeout when the total
// timeout elapsed and an error matching ErrTransportFailure when the
// transport failed or ctx was done. In all these cases the flight is
// released and may be refilled. In non-blocking mode ErrWouldBlock is
// returned while the peer has not answered; the flight is kept and the next
// call retransmits it.
func (t *Transmitter) Transmit(ctx context.Context) error {
	state := t.state
	if state != FlightRetransmit {
		state = FlightPreparing
	}

	return t.run(ctx, state)
}

func (t *Transmitter) run(ctx context.Context, state FlightState) (err error) {
	defer func() {
		if errors.Is(err, ErrWouldBlock) {
			return
		}
		err = t.finish(err)
	}()

	for {
		t.log.Tracef("[flight:%s] %s", t.cfg.role, state)
		t.setState(state)

		switch state {
		case FlightPreparing:
			state, err = t.prepare()
		case FlightSending:
			state, err = t.send(ctx)
		case FlightWaiting:
			state, err = t.wait(ctx)
		case FlightRetransmit:
			state, err = t.retransmit()
		case FlightDone:
			return nil
		default:
			return errInvalidFSMTransition
		}
		if err != nil {
			t.setState(state)

			return err
		}
	}
}

func (t *Transmitter) setState(state FlightState) {
	t.state = state
	t.cfg.tracer.updatedState(t.cfg.role, state)
}

func (t *Transmitter) prepare() (FlightState, error) {
	t.attempts = 0
	t.accumulatedWait = 0
	t.flightStart = t.cfg.clock.Now()
	t.flight.locked = true

	messages := t.flight.messages
	t.cfg.tracer.startedFlight(t.cfg.role, len(messages))
	if len(messages) == 0 {
		t.log.Debugf("[flight:%s] nothing to transmit", t.cfg.role)

		return FlightDone, nil
	}
	t.lastMessage = messages[len(messages)-1]
	t.log.Debugf("[flight:%s] start of flight transmission (messages: %d)", t.cfg.role, len(messages))

	return FlightSending, nil
}

func (t *Transmitter) send(ctx context.Context) (FlightState, error) {
	if err := ctx.Err(); err != nil {
		return FlightAborted, transportError("send", err)
	}

	t.attempts++
	for _, msg := range t.flight.messages {
		if err := t.transmitMessage(msg); err != nil {
			return sendFailed(err)
		}
	}
	if err := t.transport.Flush(); err != nil {
		return sendFailed(transportError("flush", err))
	}

	return FlightWaiting, nil
}

// sendFailed keeps the flight when the transport only asked to be called again.
func sendFailed(err error) (FlightState, error) {
	if errors.Is(err, ErrWouldBlock) {
		return FlightRetransmit, ErrWouldBlock
	}

	return FlightAborted, err
}

func (t *Transmitter) wait(ctx context.Context) (FlightState, error) { //nolint:cyclop
	finalFlight := t.awaitsRetransmitRequest()
	var buf []byte
	if finalFlight {
		buf = t.peek[:]
	}

	nonBlocking := t.cfg.retransmitInterval == 0
	interval := t.cfg.retransmitInterval
	if remaining := t.cfg.totalTimeout - t.accumulatedWait; !nonBlocking && remaining < interval {
		interval = remaining
	}

	n, err := t.transport.CheckRecv(ctx, buf, interval)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return FlightAborted, transportError("receive", ctxErr)
	}

	received := false
	switch {
	case err == nil:
		received = true
	case errors.Is(err, ErrWouldBlock), isRecvTimeout(err):
	default:
		return FlightAborted, transportError("receive", err)
	}

	if nonBlocking {
		t.accumulatedWait = t.cfg.clock.Now().Sub(t.flightStart)
	} else {
		t.accumulatedWait += interval
	}

	retransmit := !received
	if finalFlight {
		// Silence after the last flight means the peer is done. Only a
		// handshake record shows that it is still waiting for us.
		retransmit = received && n > 0 && protocol.ContentType(buf[0]) == protocol.ContentTypeHandshake
		if retransmit {
			t.log.Debugf("[flight:%s] peer retransmitted its flight", t.cfg.role)
		}
	}
	if t.accumulatedWait >= t.cfg.totalTimeout {
		t.log.Warnf("[flight:%s] total timeout reached after %d attempts (waited %v)",
			t.cfg.role, t.attempts, t.accumulatedWait)

		return FlightAborted, ErrHandshakeTimeout
	}
	if !retransmit {
		return FlightDone, nil
	}
	if nonBlocking {
		return FlightRetransmit, ErrWouldBlock
	}

	return FlightRetransmit, nil
}

func (t *Transmitter) retransmit() (FlightState, error) {
	t.log.Debugf("[flight:%s] retransmitting flight (attempt: %d, waited: %v)",
		t.cfg.role, t.attempts+1, t.accumulatedWait)
	t.cfg.tracer.retransmitted(t.cfg.role, t.attempts+1)

	return FlightSending, nil
}

// awaitsRetransmitRequest reports whether the flight ends the handshake, in
// which case nothing acknowledges it.
func (t *Transmitter) awaitsRetransmitRequest() bool {
	m := t.lastMessage

	return m != nil && !m.ChangeCipherSpec && m.Type == handshake.TypeFinished &&
		sendsFinalFlight(t.cfg.role, t.cfg.resumed)
}

// finish releases the flight once per transmission.
func (t *Transmitter) finish(err error) error {
	t.flight.locked = false
	t.lastMessage = nil
	if relErr := t.flight.release(); relErr != nil {
		t.log.Errorf("[flight:%s] failed to release flight: %v", t.cfg.role, relErr)
		if err == nil {
			err = relErr
		} else {
			err = errors.Join(err, relErr)
		}
	}

	final := FlightDone
	if err != nil {
		final = FlightAborted
		t.log.Debugf("[flight:%s] flight aborted after %d attempts: %v", t.cfg.role, t.attempts, err)
	} else {
		t.log.Debugf("[flight:%s] end of flight transmission (attempts: %d)", t.cfg.role, t.attempts)
	}
	if t.state != final {
		t.setState(final)
	}
	t.cfg.tracer.finishedFlight(t.cfg.role, t.attempts, t.accumulatedWait, err)

	return err
}
