// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"bytes"
	"math"
	"testing"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
)

func FuzzFragmentBufferPush(f *testing.F) {
	f.Add([]byte{
		0x16, 0xfe, 0xfd, 0x00, 0x00, 0, 0, 0, 0, 0, 0x00, 0x00, 0x0e,
		0x0b, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0xAA, 0xBB,
	})
	f.Add([]byte{0x14, 0xfe, 0xfd, 0x00, 0x00, 0, 0, 0, 0, 0, 0x00, 0x00, 0x01, 0x01})

	f.Fuzz(func(t *testing.T, data []byte) {
		buffer := NewFragmentBuffer()
		records, err := recordlayer.UnpackDatagram(data)
		if err != nil {
			return
		}
		for _, record := range records {
			if _, err = buffer.Push(record); err != nil {
				return
			}
		}
		for msg := buffer.Pop(); msg != nil; msg = buffer.Pop() {
			if len(msg.Body) > handshake.MaxLength {
				t.Fatalf("message body of %d bytes", len(msg.Body))
			}
		}
	})
}

func FuzzFragmentMessage(f *testing.F) {
	f.Add(uint16(0), uint16(1), true)
	f.Add(uint16(1175), uint16(1175), true)
	f.Add(uint16(3000), uint16(16), false)

	f.Fuzz(func(t *testing.T, length, mtu uint16, emptyTerminal bool) {
		// Stay below the fragment cap of the reassembly buffer.
		if mtu == 0 || int(mtu) > math.MaxUint16-handshake.HeaderLength ||
			int(length)/int(mtu) >= fragmentBufferMaxCount-1 {
			return
		}
		msg := &Message{Type: handshake.TypeCertificate, Body: testBody(int(length))}
		fragments, err := fragmentMessage(msg, int(mtu), emptyTerminal)
		if err != nil {
			t.Fatal(err)
		}

		buffer := NewFragmentBuffer()
		for _, fragment := range fragments {
			hdr := &recordlayer.Header{ContentType: protocol.ContentTypeHandshake, Version: protocol.Version1_2}
			record, sealErr := hdr.Seal(fragment)
			if sealErr != nil {
				t.Fatal(sealErr)
			}
			if _, err = buffer.Push(record); err != nil {
				t.Fatal(err)
			}
		}

		got := buffer.Pop()
		if got == nil || !bytes.Equal(got.Body, msg.Body) {
			t.Fatalf("reassembly of %d bytes at mtu %d failed", length, mtu)
		}
	})
}
