// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package handshake provides the DTLS wire protocol for handshakes
package handshake

import (
	"golang.org/x/crypto/cryptobyte"
)

// HeaderLength msg_len for Handshake messages assumes an extra
// 12 bytes for sequence, fragment and version information vs TLS.
const HeaderLength = 12

// MaxLength is the largest message or fragment length a uint24 can express.
const MaxLength = 1<<24 - 1

// Header is the static first 12 bytes of each RecordLayer
// of type Handshake. These fields allow us to support message loss, reordering, and
// message fragmentation,
//
//	https://tools.ietf.org/html/rfc6347#section-4.2.2
//
//	 0               1               2               3
//	+---------------+---------------+---------------+---------------+
//	|   msg_type    |            length (uint24)                    |
//	+---------------+---------------+---------------+---------------+
//	|     message_seq (uint16)      |   fragment_offset (uint24)    |
//	+---------------+---------------+---------------+---------------+
//	|  ...offset    |         fragment_length (uint24)              |
//	+---------------+---------------+---------------+---------------+
type Header struct {
	Type            Type
	Length          uint32 // uint24 in spec
	MessageSequence uint16
	FragmentOffset  uint32 // uint24 in spec
	FragmentLength  uint32 // uint24 in spec
}

// IsFragmented reports whether the header describes only part of a message.
func (h *Header) IsFragmented() bool {
	return h.FragmentOffset != 0 || h.FragmentLength != h.Length
}

// Marshal encodes the Header.
func (h *Header) Marshal() ([]byte, error) {
	return h.AppendTo(make([]byte, 0, HeaderLength))
}

// AppendTo appends the encoded Header to out.
func (h *Header) AppendTo(out []byte) ([]byte, error) {
	if h.Length > MaxLength || h.FragmentOffset > MaxLength || h.FragmentLength > MaxLength {
		return nil, errLengthOverflow
	}
	if h.FragmentOffset+h.FragmentLength > h.Length {
		return nil, errFragmentOutOfBounds
	}

	b := cryptobyte.NewBuilder(out)
	b.AddUint8(uint8(h.Type))
	b.AddUint24(h.Length)
	b.AddUint16(h.MessageSequence)
	b.AddUint24(h.FragmentOffset)
	b.AddUint24(h.FragmentLength)

	return b.Bytes()
}

// Unmarshal populates the header from encoded data.
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderLength {
		return errBufferTooSmall
	}

	s := cryptobyte.String(data[:HeaderLength])
	var typ uint8
	if !s.ReadUint8(&typ) ||
		!s.ReadUint24(&h.Length) ||
		!s.ReadUint16(&h.MessageSequence) ||
		!s.ReadUint24(&h.FragmentOffset) ||
		!s.ReadUint24(&h.FragmentLength) {
		return errBufferTooSmall
	}
	h.Type = Type(typ)

	return nil
}
