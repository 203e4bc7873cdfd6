// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
)

// fragmentMessage chops a handshake message into fragments carrying at most
// mtu bytes of body each, every one prefixed with its own handshake header.
//
// The loop condition is offset <= len(body), so a body whose length is a
// multiple of mtu (including an empty body) ends with a zero-length fragment
// at offset len(body). Peers derived from the same reference implementation
// expect that terminator. With emptyTerminal unset only an empty body
// produces a zero-length fragment.
func fragmentMessage(msg *Message, mtu int, emptyTerminal bool) ([][]byte, error) {
	if mtu <= 0 {
		return nil, errInvalidMTU
	}
	if len(msg.Body) > handshake.MaxLength {
		return nil, ErrMemoryExhausted
	}

	dataSize := len(msg.Body)
	fragments := make([][]byte, 0, dataSize/mtu+1)
	for offset := 0; offset <= dataSize; offset += mtu {
		fragLen := mtu
		if offset+mtu > dataSize {
			fragLen = dataSize - offset
		}
		if fragLen == 0 && offset != 0 && !emptyTerminal {
			break
		}

		hdr := handshake.Header{
			Type:            msg.Type,
			Length:          uint32(dataSize), //nolint:gosec // bounded by handshake.MaxLength
			MessageSequence: msg.Sequence,
			FragmentOffset:  uint32(offset),  //nolint:gosec // bounded by handshake.MaxLength
			FragmentLength:  uint32(fragLen), //nolint:gosec // bounded by mtu
		}
		raw, err := hdr.AppendTo(make([]byte, 0, handshake.HeaderLength+fragLen))
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, append(raw, msg.Body[offset:offset+fragLen]...))
	}

	return fragments, nil
}

// transmitMessage writes one buffered message to the record writer. A
// ChangeCipherSpec is written as a single record holding its raw body; any
// other message is fragmented first. The first failing write stops the
// message and is returned.
func (t *Transmitter) transmitMessage(msg *Message) error {
	if msg.ChangeCipherSpec {
		t.log.Tracef("[flight:%s] -> ChangeCipherSpec (epoch: %d)", t.cfg.role, msg.Epoch)
		if _, err := t.transport.WriteRecord(protocol.ContentTypeChangeCipherSpec, msg.Type, msg.Epoch, msg.Body); err != nil {
			return transportError("write", err)
		}

		return nil
	}

	fragments, err := fragmentMessage(msg, t.cfg.mtu, t.cfg.emptyTerminalFragment)
	if err != nil {
		return err
	}

	offset := 0
	for _, fragment := range fragments {
		fragLen := len(fragment) - handshake.HeaderLength
		t.log.Tracef("[flight:%s] -> %s fragment (seq: %d, length: %d, offset: %d, fragment length: %d)",
			t.cfg.role, msg.Type, msg.Sequence, len(msg.Body), offset, fragLen)

		if _, err := t.transport.WriteRecord(protocol.ContentTypeHandshake, msg.Type, msg.Epoch, fragment); err != nil {
			return transportError("write", err)
		}
		t.cfg.tracer.sentFragment(t.cfg.role, msg.Type, msg.Epoch, offset, fragLen)
		offset += fragLen
	}

	return nil
}
