// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"testing"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshakeRecord(t *testing.T, epoch uint16, hdr handshake.Header, payload []byte) []byte {
	t.Helper()

	raw, err := hdr.Marshal()
	require.NoError(t, err)

	rec := &recordlayer.Header{
		ContentType: protocol.ContentTypeHandshake,
		Version:     protocol.Version1_2,
		Epoch:       epoch,
	}
	out, err := rec.Seal(append(raw, payload...))
	require.NoError(t, err)

	return out
}

func TestFragmentBuffer(t *testing.T) {
	for _, test := range []struct {
		Name     string
		Records  func(t *testing.T) [][]byte
		Expected []*Message
	}{
		{
			Name: "Single",
			Records: func(t *testing.T) [][]byte {
				return [][]byte{
					handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeClientHello, Length: 3, FragmentLength: 3}, []byte{1, 2, 3}),
				}
			},
			Expected: []*Message{
				{Type: handshake.TypeClientHello, Body: []byte{1, 2, 3}},
			},
		},
		{
			Name: "OverlappingOutOfOrder",
			Records: func(t *testing.T) [][]byte {
				hdr := handshake.Header{Type: handshake.TypeCertificate, Length: 6}
				tail, head := hdr, hdr
				tail.FragmentOffset, tail.FragmentLength = 2, 4
				head.FragmentOffset, head.FragmentLength = 0, 3

				return [][]byte{
					handshakeRecord(t, 0, tail, []byte{3, 4, 5, 6}),
					handshakeRecord(t, 0, head, []byte{1, 2, 3}),
				}
			},
			Expected: []*Message{
				{Type: handshake.TypeCertificate, Body: []byte{1, 2, 3, 4, 5, 6}},
			},
		},
		{
			Name: "EmptyTerminalFragment",
			Records: func(t *testing.T) [][]byte {
				hdr := handshake.Header{Type: handshake.TypeServerHelloDone, Length: 2, FragmentLength: 2}
				terminal := hdr
				terminal.FragmentOffset, terminal.FragmentLength = 2, 0

				return [][]byte{
					handshakeRecord(t, 0, hdr, []byte{9, 9}),
					handshakeRecord(t, 0, terminal, nil),
				}
			},
			Expected: []*Message{
				{Type: handshake.TypeServerHelloDone, Body: []byte{9, 9}},
			},
		},
		{
			Name: "SequenceOrder",
			Records: func(t *testing.T) [][]byte {
				return [][]byte{
					handshakeRecord(t, 1, handshake.Header{Type: handshake.TypeFinished, MessageSequence: 1, Length: 1, FragmentLength: 1}, []byte{2}),
					handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeClientKeyExchange, Length: 1, FragmentLength: 1}, []byte{1}),
				}
			},
			Expected: []*Message{
				{Type: handshake.TypeClientKeyExchange, Body: []byte{1}},
				{Type: handshake.TypeFinished, Sequence: 1, Epoch: 1, Body: []byte{2}},
			},
		},
		{
			Name: "MissingBytes",
			Records: func(t *testing.T) [][]byte {
				return [][]byte{
					handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeCertificate, Length: 4, FragmentLength: 2}, []byte{1, 2}),
				}
			},
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			buffer := NewFragmentBuffer()
			for _, record := range test.Records(t) {
				isHandshake, err := buffer.Push(record)
				require.NoError(t, err)
				require.True(t, isHandshake)
			}

			var popped []*Message
			for msg := buffer.Pop(); msg != nil; msg = buffer.Pop() {
				popped = append(popped, msg)
			}
			assert.Equal(t, test.Expected, popped)
		})
	}
}

func TestFragmentBufferIgnoresOldMessages(t *testing.T) {
	buffer := NewFragmentBuffer()
	record := handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeClientHello, Length: 1, FragmentLength: 1}, []byte{1})

	_, err := buffer.Push(record)
	require.NoError(t, err)
	require.NotNil(t, buffer.Pop())
	assert.Equal(t, uint16(1), buffer.NextSequence())

	_, err = buffer.Push(record)
	require.NoError(t, err)
	assert.Nil(t, buffer.Pop())
}

func TestFragmentBufferNonHandshake(t *testing.T) {
	hdr := &recordlayer.Header{ContentType: protocol.ContentTypeChangeCipherSpec, Version: protocol.Version1_2}
	record, err := hdr.Seal([]byte{0x01})
	require.NoError(t, err)

	isHandshake, err := NewFragmentBuffer().Push(record)
	require.NoError(t, err)
	assert.False(t, isHandshake)
}

func TestFragmentBufferErrors(t *testing.T) {
	t.Run("Overflow", func(t *testing.T) {
		record := handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeCertificate, Length: fragmentBufferMaxSize + 1}, nil)
		_, err := NewFragmentBuffer().Push(record)
		require.ErrorIs(t, err, errFragmentBufferOverflow)
	})

	t.Run("Inconsistent", func(t *testing.T) {
		buffer := NewFragmentBuffer()
		_, err := buffer.Push(handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeCertificate, Length: 4, FragmentLength: 2}, []byte{1, 2}))
		require.NoError(t, err)

		_, err = buffer.Push(handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeCertificate, Length: 5, FragmentOffset: 2, FragmentLength: 2}, []byte{3, 4}))
		require.ErrorIs(t, err, errInconsistentFragment)
	})

	t.Run("Truncated", func(t *testing.T) {
		record := handshakeRecord(t, 0, handshake.Header{Type: handshake.TypeCertificate, Length: 4, FragmentLength: 4}, []byte{1, 2, 3, 4})
		hdr := &recordlayer.Header{ContentType: protocol.ContentTypeHandshake, Version: protocol.Version1_2}
		truncated, err := hdr.Seal(record[recordlayer.FixedHeaderSize : len(record)-1])
		require.NoError(t, err)

		_, err = NewFragmentBuffer().Push(truncated)
		require.ErrorIs(t, err, errBufferTooSmall)
	})
}
