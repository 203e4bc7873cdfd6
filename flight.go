// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"fmt"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
)

/*
  DTLS messages are grouped into a series of message flights, according
  to the diagrams below.  Although each flight of messages may consist
  of a number of messages, they should be viewed as monolithic for the
  purpose of timeout and retransmission.
  https://tools.ietf.org/html/rfc4347#section-4.2.4

  Message flights for full handshake:

  Client                                          Server
  ------                                          ------
                                      Waiting                 Flight 0

  ClientHello             -------->                           Flight 1

                          <-------    HelloVerifyRequest      Flight 2

  ClientHello              -------->                           Flight 3

                                             ServerHello    \
                                            Certificate*     \
                                      ServerKeyExchange*      Flight 4
                                     CertificateRequest*     /
                          <--------      ServerHelloDone    /

  Certificate*                                              \
  ClientKeyExchange                                          \
  CertificateVerify*                                          Flight 5
  [ChangeCipherSpec]                                         /
  Finished                -------->                         /

                                      [ChangeCipherSpec]    \ Flight 6
                          <--------             Finished    /

  Message flights for session-resuming handshake (no cookie exchange):

  Client                                          Server
  ------                                          ------
                                      Waiting                 Flight 0

  ClientHello             -------->                           Flight 1

                                             ServerHello    \
                                      [ChangeCipherSpec]      Flight 4b
                          <--------             Finished    /

  [ChangeCipherSpec]                                        \ Flight 5b
  Finished                -------->                         /
*/

// Role is the side of the handshake a connection plays.
type Role uint8

// Role enums.
const (
	RoleClient Role = iota + 1
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// sendsFinalFlight reports whether this side sends the last flight of the
// handshake: Flight 6 for a server on a full handshake, Flight 5b for a
// client resuming a session. Nothing acknowledges that flight, so only a
// retransmission from the peer tells us it was lost.
func sendsFinalFlight(role Role, resumed bool) bool {
	return (role == RoleServer && !resumed) || (role == RoleClient && resumed)
}

// Message is one buffered outbound handshake message. It is immutable once
// pushed onto a Flight.
type Message struct {
	Type     handshake.Type
	Sequence uint16
	Epoch    uint16
	Body     []byte

	// ChangeCipherSpec marks the CCS notification, sent as one unfragmented record.
	ChangeCipherSpec bool
}

func (m *Message) String() string {
	if m.ChangeCipherSpec {
		return fmt.Sprintf("ChangeCipherSpec(epoch: %d)", m.Epoch)
	}

	return fmt.Sprintf("%s(seq: %d, epoch: %d, len: %d)", m.Type, m.Sequence, m.Epoch, len(m.Body))
}

// Flight is the ordered buffer of messages that must all reach the peer
// before the handshake can advance. Every buffered message holds one usage
// reference on its epoch until the flight is released.
type Flight struct {
	epochs   *EpochTable
	messages []*Message

	handshakeSendSequence uint16
	locked                bool
}

// NewFlight returns an empty flight whose messages reference epochs in epochs.
func NewFlight(epochs *EpochTable) (*Flight, error) {
	if epochs == nil {
		return nil, errNilEpochTable
	}

	return &Flight{epochs: epochs}, nil
}

// Epochs returns the epoch table the flight references.
func (f *Flight) Epochs() *EpochTable {
	return f.epochs
}

// Push appends msg and acquires a usage reference on its epoch.
func (f *Flight) Push(msg Message) error {
	if f.locked {
		return errTransmitInProgress
	}
	if err := f.epochs.Acquire(msg.Epoch); err != nil {
		return err
	}
	msg.Body = append([]byte{}, msg.Body...)
	f.messages = append(f.messages, &msg)

	return nil
}

// PushHandshake appends a handshake message under epoch using the next
// handshake message sequence number of the connection.
func (f *Flight) PushHandshake(typ handshake.Type, epoch uint16, body []byte) error {
	if err := f.Push(Message{
		Type:     typ,
		Sequence: f.handshakeSendSequence,
		Epoch:    epoch,
		Body:     body,
	}); err != nil {
		return err
	}
	f.handshakeSendSequence++

	return nil
}

// PushChangeCipherSpec appends the ChangeCipherSpec notification sent under epoch.
func (f *Flight) PushChangeCipherSpec(epoch uint16) error {
	ccs := &protocol.ChangeCipherSpec{}
	body, err := ccs.Marshal()
	if err != nil {
		return err
	}

	return f.Push(Message{Epoch: epoch, Body: body, ChangeCipherSpec: true})
}

// Len returns the number of buffered messages.
func (f *Flight) Len() int {
	return len(f.messages)
}

// Messages returns the buffered messages in transmission order.
func (f *Flight) Messages() []*Message {
	return append([]*Message{}, f.messages...)
}

// NextSequence returns the handshake sequence number the next
// PushHandshake will use.
func (f *Flight) NextSequence() uint16 {
	return f.handshakeSendSequence
}

// release drops the epoch reference of every buffered message exactly once
// and clears the buffer. All messages are released even when one fails; the
// first failure is returned.
func (f *Flight) release() error {
	var firstErr error
	for _, m := range f.messages {
		if err := f.epochs.Release(m.Epoch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.messages = nil

	return firstErr
}
