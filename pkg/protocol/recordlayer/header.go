// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package recordlayer

import (
	"math"

	"github.com/pion/dtlsflight/pkg/protocol"
	"golang.org/x/crypto/cryptobyte"
)

// Header implements a TLS RecordLayer header.
type Header struct {
	ContentType    protocol.ContentType
	ContentLen     uint16
	Version        protocol.Version
	Epoch          uint16
	SequenceNumber uint64 // uint48 on the wire
}

// RecordLayer enums.
const (
	// FixedHeaderSize is the size of a DTLS 1.2 record header.
	FixedHeaderSize = 13
	// MaxSequenceNumber is the largest 48-bit record sequence number.
	MaxSequenceNumber = 0x0000FFFFFFFFFFFF
)

// Marshal encodes a TLS RecordLayer Header to binary.
func (h *Header) Marshal() ([]byte, error) {
	return h.AppendTo(make([]byte, 0, FixedHeaderSize))
}

// AppendTo appends the encoded header to out.
func (h *Header) AppendTo(out []byte) ([]byte, error) {
	if h.SequenceNumber > MaxSequenceNumber {
		return nil, errSequenceNumberOverflow
	}

	b := cryptobyte.NewBuilder(out)
	b.AddUint8(uint8(h.ContentType))
	b.AddUint8(h.Version.Major)
	b.AddUint8(h.Version.Minor)
	b.AddUint16(h.Epoch)
	// we only want uint48, Golang doesn't have uint48
	b.AddUint16(uint16(h.SequenceNumber >> 32))
	b.AddUint32(uint32(h.SequenceNumber))
	b.AddUint16(h.ContentLen)

	return b.Bytes()
}

// Unmarshal populates a TLS RecordLayer Header from binary.
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < FixedHeaderSize {
		return errBufferTooSmall
	}

	s := cryptobyte.String(data[:FixedHeaderSize])
	var (
		contentType uint8
		seqHigh     uint16
		seqLow      uint32
	)
	if !s.ReadUint8(&contentType) ||
		!s.ReadUint8(&h.Version.Major) ||
		!s.ReadUint8(&h.Version.Minor) ||
		!s.ReadUint16(&h.Epoch) ||
		!s.ReadUint16(&seqHigh) ||
		!s.ReadUint32(&seqLow) ||
		!s.ReadUint16(&h.ContentLen) {
		return errBufferTooSmall
	}
	h.ContentType = protocol.ContentType(contentType)
	h.SequenceNumber = uint64(seqHigh)<<32 | uint64(seqLow)

	if !protocol.IsValidVersion(h.Version) {
		return errUnsupportedProtocolVersion
	}
	if !h.ContentType.IsValid() {
		return errInvalidContentType
	}

	return nil
}

// Seal frames content behind the header, filling in ContentLen.
func (h *Header) Seal(content []byte) ([]byte, error) {
	if len(content) > math.MaxUint16 {
		return nil, errContentTooLong
	}
	h.ContentLen = uint16(len(content)) //nolint:gosec // checked above

	out, err := h.AppendTo(make([]byte, 0, FixedHeaderSize+len(content)))
	if err != nil {
		return nil, err
	}

	return append(out, content...), nil
}
