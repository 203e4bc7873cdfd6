// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package recordlayer

import (
	"testing"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPDecode(t *testing.T) {
	for _, test := range []struct {
		Name      string
		Data      []byte
		Want      [][]byte
		WantError error
	}{
		{
			Name: "Change Cipher Spec, single packet",
			Data: []byte{0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0x01, 0x01},
			Want: [][]byte{
				{0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0x01, 0x01},
			},
		},
		{
			Name: "Change Cipher Spec, multi packet",
			Data: []byte{
				0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0x01, 0x01,
				0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x13, 0x00, 0x01, 0x01,
			},
			Want: [][]byte{
				{0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0x01, 0x01},
				{0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x13, 0x00, 0x01, 0x01},
			},
		},
		{
			Name:      "Invalid packet length",
			Data:      []byte{0x14, 0xfe},
			WantError: ErrInvalidPacketLength,
		},
		{
			Name:      "Packet declared invalid length",
			Data:      []byte{0x14, 0xfe, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0xFF, 0x01},
			WantError: ErrInvalidPacketLength,
		},
	} {
		dtlsPkts, err := UnpackDatagram(test.Data)
		assert.ErrorIs(t, err, test.WantError)
		assert.Equal(t, test.Want, dtlsPkts, "UDP decode: %s", test.Name)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		ContentType:    protocol.ContentTypeHandshake,
		Version:        protocol.Version1_2,
		Epoch:          1,
		SequenceNumber: 0x0000aabbccddeeff,
	}

	raw, err := h.Seal([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x16,       // content type
		0xfe, 0xfd, // version
		0x00, 0x01, // epoch
		0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, // sequence number
		0x00, 0x03, // length
		0x01, 0x02, 0x03,
	}, raw)

	var parsed Header
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, h, parsed)
}

func TestHeaderErrors(t *testing.T) {
	h := Header{SequenceNumber: MaxSequenceNumber + 1}
	_, err := h.Marshal()
	assert.ErrorIs(t, err, errSequenceNumberOverflow)

	var parsed Header
	assert.ErrorIs(t, parsed.Unmarshal([]byte{0x16, 0xfe}), errBufferTooSmall)
	assert.ErrorIs(t, parsed.Unmarshal([]byte{
		0x16, 0x03, 0x03, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}), errUnsupportedProtocolVersion)
	assert.ErrorIs(t, parsed.Unmarshal([]byte{
		0x63, 0xfe, 0xfd, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}), errInvalidContentType)

	_, err = h.Seal(make([]byte, 1<<16))
	assert.ErrorIs(t, err, errContentTooLong)
}
