// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"context"
	"time"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
)

type writtenRecord struct {
	contentType protocol.ContentType
	typ         handshake.Type
	epoch       uint16
	data        []byte
}

type recvResult struct {
	data []byte
	err  error
}

// fakeTransport records writes and answers CheckRecv from a script. Once
// the script is exhausted nothing ever arrives.
type fakeTransport struct {
	records  []writtenRecord
	flushes  int
	writeErr error
	flushErr error

	recv      []recvResult
	recvCalls []time.Duration
}

func (f *fakeTransport) WriteRecord(ct protocol.ContentType, typ handshake.Type, epoch uint16, data []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.records = append(f.records, writtenRecord{
		contentType: ct,
		typ:         typ,
		epoch:       epoch,
		data:        append([]byte{}, data...),
	})

	return len(data), nil
}

func (f *fakeTransport) Flush() error {
	f.flushes++

	return f.flushErr
}

func (f *fakeTransport) CheckRecv(_ context.Context, buf []byte, timeout time.Duration) (int, error) {
	f.recvCalls = append(f.recvCalls, timeout)
	if len(f.recv) == 0 {
		if timeout == 0 {
			return 0, ErrWouldBlock
		}

		return 0, ErrRecvTimeout
	}

	r := f.recv[0]
	f.recv = f.recv[1:]
	if r.err != nil {
		return 0, r.err
	}

	return copy(buf, r.data), nil
}

// handshakeBytes is what a peer still waiting for our flight sends.
var handshakeBytes = recvResult{data: []byte{byte(protocol.ContentTypeHandshake)}}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
